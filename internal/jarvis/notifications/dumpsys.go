// Package notifications scans the device's notifications, keeps the
// important ones and logs them.
package notifications

import (
	"bufio"
	"context"
	"regexp"
	"strings"

	"github.com/bdobrica/jarvis/internal/jarvis/device"
)

// DumpsysCommand prints active notifications with their extras.
const DumpsysCommand = "dumpsys notification --noredact"

var (
	recordLine = regexp.MustCompile(`NotificationRecord\(.*\bpkg=(\S+)`)
	extraLine  = regexp.MustCompile(`^android\.(title|text)=(.*)$`)
	typedValue = regexp.MustCompile(`^\w+ \((.*)\)$`)
)

// Notification is one posted notification.
type Notification struct {
	Package string
	Title   string
	Text    string
}

// String renders n as "app: title - text".
func (n Notification) String() string {
	app := n.Package[strings.LastIndex(n.Package, ".")+1:]
	body := n.Title
	switch {
	case body == "":
		body = n.Text
	case n.Text != "":
		body += " - " + n.Text
	}
	if app == "" {
		return body
	}
	return app + ": " + body
}

// ParseDumpsys extracts notifications from dumpsys output. Records without a
// title or text are skipped and duplicates are dropped.
func ParseDumpsys(output string) []Notification {
	var (
		out  []Notification
		cur  *Notification
		seen = make(map[Notification]bool)
	)
	flush := func() {
		if cur != nil && (cur.Title != "" || cur.Text != "") && !seen[*cur] {
			seen[*cur] = true
			out = append(out, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := recordLine.FindStringSubmatch(line); m != nil {
			flush()
			cur = &Notification{Package: m[1]}
			continue
		}
		if cur == nil {
			continue
		}
		m := extraLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v := strings.TrimSpace(m[2])
		if tv := typedValue.FindStringSubmatch(v); tv != nil {
			v = strings.TrimSpace(tv[1])
		}
		if v == "null" {
			continue
		}
		if m[1] == "title" && cur.Title == "" {
			cur.Title = v
		} else if m[1] == "text" && cur.Text == "" {
			cur.Text = v
		}
	}
	flush()
	return out
}

// Source yields raw notification lines.
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// DumpsysSource reads notifications from the device.
type DumpsysSource struct {
	Runner device.Runner
}

// Fetch implements Source.
func (d DumpsysSource) Fetch(ctx context.Context) ([]string, error) {
	out, err := d.Runner.Shell(ctx, DumpsysCommand)
	if err != nil {
		return nil, err
	}
	parsed := ParseDumpsys(out)
	lines := make([]string, len(parsed))
	for i, n := range parsed {
		lines[i] = n.String()
	}
	return lines, nil
}
