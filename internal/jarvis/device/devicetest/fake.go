// Package devicetest provides an in-memory device.Runner for tests.
package devicetest

import (
	"context"
	"strings"
	"sync"
)

// Fake records commands and answers them from canned outputs. Commands with
// no registered output succeed with empty output.
type Fake struct {
	mu       sync.Mutex
	outputs  map[string]string
	errs     map[string]error
	execOut  map[string][]byte
	commands []string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		outputs: make(map[string]string),
		errs:    make(map[string]error),
		execOut: make(map[string][]byte),
	}
}

// On registers the output of every shell command starting with prefix.
func (f *Fake) On(prefix, output string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[prefix] = output
	return f
}

// Fail makes every shell command starting with prefix return err.
func (f *Fake) Fail(prefix string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[prefix] = err
	return f
}

// OnExec registers the output of a raw adb subcommand, keyed by its
// space-joined arguments.
func (f *Fake) OnExec(args string, out []byte) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execOut[args] = out
	return f
}

// Commands returns every command seen so far. Raw subcommands are prefixed
// with "adb ".
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Shell implements device.Runner.
func (f *Fake) Shell(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	if key, ok := longestPrefix(f.errs, command); ok {
		return "", f.errs[key]
	}
	if key, ok := longestPrefix(f.outputs, command); ok {
		return f.outputs[key], nil
	}
	return "", nil
}

// Exec implements device.Runner.
func (f *Fake) Exec(ctx context.Context, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	joined := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "adb "+joined)
	if key, ok := longestPrefix(f.errs, "adb "+joined); ok {
		return nil, f.errs[key]
	}
	return f.execOut[joined], nil
}

func longestPrefix[V any](m map[string]V, s string) (string, bool) {
	best, found := "", false
	for k := range m {
		if strings.HasPrefix(s, k) && len(k) >= len(best) {
			best, found = k, true
		}
	}
	return best, found
}
