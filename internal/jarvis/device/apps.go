package device

import (
	"bufio"
	"context"
	"strings"
)

// ListPackagesCommand lists packages installed for the primary user.
const ListPackagesCommand = "cmd package list packages --user 0"

// ParsePackages turns "package:<name>" lines into a catalog keyed by the
// lowercase last segment of each package name. Later packages win on
// collisions.
func ParsePackages(output string) map[string]string {
	apps := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "package:") {
			continue
		}
		pkg := strings.TrimSpace(line[strings.LastIndex(line, ":")+1:])
		if pkg == "" {
			continue
		}
		name := pkg[strings.LastIndex(pkg, ".")+1:]
		apps[strings.ToLower(name)] = pkg
	}
	return apps
}

// ListPackages fetches the app catalog from the device.
func ListPackages(ctx context.Context, r Runner) (map[string]string, error) {
	out, err := r.Shell(ctx, ListPackagesCommand)
	if err != nil {
		return nil, err
	}
	return ParsePackages(out), nil
}

// NormalizeAppName lowercases name and removes whitespace, matching catalog
// keys.
func NormalizeAppName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "")
}

// LaunchCommand starts pkg's launcher activity.
func LaunchCommand(pkg string) string {
	return "monkey -p " + pkg + " -c android.intent.category.LAUNCHER 1"
}
