package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// CommandSpeaker speaks by running an external TTS command with the text
// appended as its last argument, e.g. []string{"espeak-ng", "-v", "en-gb"}.
type CommandSpeaker struct {
	Command []string
}

// Speak implements agent.Speaker.
func (c CommandSpeaker) Speak(ctx context.Context, text string) error {
	if len(c.Command) == 0 {
		return fmt.Errorf("speak: no command configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	args := append(append([]string(nil), c.Command[1:]...), text)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("speak: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// WriterSpeaker prints replies, prefixed with Name.
type WriterSpeaker struct {
	mu   sync.Mutex
	W    io.Writer
	Name string
}

// NewWriterSpeaker prints to w. A nil w means stdout.
func NewWriterSpeaker(w io.Writer, name string) *WriterSpeaker {
	if w == nil {
		w = os.Stdout
	}
	return &WriterSpeaker{W: w, Name: name}
}

// Speak implements agent.Speaker.
func (s *WriterSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Name == "" {
		_, err := fmt.Fprintln(s.W, text)
		return err
	}
	_, err := fmt.Fprintf(s.W, "%s: %s\n", s.Name, text)
	return err
}

// Speaker delivers text to the user.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Speakers fans a reply out to several speakers and returns the first error.
type Speakers []Speaker

// Speak implements agent.Speaker.
func (ss Speakers) Speak(ctx context.Context, text string) error {
	var first error
	for _, s := range ss {
		if err := s.Speak(ctx, text); err != nil && first == nil {
			first = err
		}
	}
	return first
}
