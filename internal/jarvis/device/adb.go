// Package device talks to the connected Android device through adb.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrNoDevice is returned when adb reports that no device is reachable.
var ErrNoDevice = errors.New("device: no device connected")

// Runner executes commands on the device.
type Runner interface {
	// Shell runs command through "adb shell" and returns its trimmed stdout.
	Shell(ctx context.Context, command string) (string, error)
	// Exec runs a raw adb subcommand (e.g. "reboot", "exec-out") and returns
	// its stdout unmodified.
	Exec(ctx context.Context, args ...string) ([]byte, error)
}

// ADB runs commands with the adb binary.
type ADB struct {
	// Bin is the adb executable. Empty means "adb" from PATH.
	Bin string
	// Serial selects a device when several are attached (adb -s).
	Serial string
}

// NewADB returns an ADB runner.
func NewADB(bin, serial string) *ADB {
	return &ADB{Bin: bin, Serial: serial}
}

// Shell implements Runner.
func (a *ADB) Shell(ctx context.Context, command string) (string, error) {
	out, err := a.Exec(ctx, "shell", command)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Exec implements Runner.
func (a *ADB) Exec(ctx context.Context, args ...string) ([]byte, error) {
	bin := a.Bin
	if bin == "" {
		bin = "adb"
	}
	full := make([]string, 0, len(args)+2)
	if a.Serial != "" {
		full = append(full, "-s", a.Serial)
	}
	full = append(full, args...)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, full...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		slog.Warn("adb command failed", "args", strings.Join(args, " "), "err", err, "stderr", msg)
		if isNoDevice(msg) {
			return nil, ErrNoDevice
		}
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("adb %s: %s", args[0], msg)
	}
	slog.Debug("adb command ok", "args", strings.Join(args, " "), "bytes", stdout.Len())
	return stdout.Bytes(), nil
}

func isNoDevice(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no devices/emulators found") ||
		strings.Contains(s, "device offline") ||
		strings.Contains(s, "device unauthorized") ||
		(strings.Contains(s, "device '") && strings.Contains(s, "not found"))
}

// ShellQuote wraps s in single quotes for the device shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
