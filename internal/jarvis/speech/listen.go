package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// FilePlaceholder in a recorder command is replaced by the output file path.
const FilePlaceholder = "{file}"

// LineListener reads one utterance per line, e.g. from stdin. Listen returns
// io.EOF once the reader is exhausted.
type LineListener struct {
	once   sync.Once
	r      io.Reader
	prompt io.Writer
	lines  chan string
	err    error
}

// NewLineListener reads from r. When prompt is non-nil, "> " is written to it
// before each line is awaited.
func NewLineListener(r io.Reader, prompt io.Writer) *LineListener {
	return &LineListener{r: r, prompt: prompt, lines: make(chan string)}
}

func (l *LineListener) start() {
	go func() {
		sc := bufio.NewScanner(l.r)
		for sc.Scan() {
			l.lines <- sc.Text()
		}
		l.err = sc.Err()
		close(l.lines)
	}()
}

// Listen implements agent.Listener.
func (l *LineListener) Listen(ctx context.Context) (string, error) {
	l.once.Do(l.start)
	if l.prompt != nil {
		fmt.Fprint(l.prompt, "> ")
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-l.lines:
		if !ok {
			if l.err != nil {
				return "", l.err
			}
			return "", io.EOF
		}
		return line, nil
	}
}

// RecorderListener runs an external recorder for every utterance and
// transcribes the file it writes. Wake-word detection belongs to the
// recorder command.
type RecorderListener struct {
	// Command records one utterance into the FilePlaceholder path, e.g.
	// []string{"rec", "-q", "{file}", "silence", "1", "0.1", "1%", "1", "1.5", "1%"}.
	Command     []string
	Transcriber Transcriber
	// Dir holds temporary recordings. Empty means os.TempDir().
	Dir string
}

// Listen implements agent.Listener.
func (r *RecorderListener) Listen(ctx context.Context) (string, error) {
	if len(r.Command) == 0 {
		return "", fmt.Errorf("listen: no recorder command configured")
	}
	f, err := os.CreateTemp(r.Dir, "jarvis-command-*.wav")
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	args := make([]string, len(r.Command))
	for i, a := range r.Command {
		args[i] = strings.ReplaceAll(a, FilePlaceholder, path)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("listen: record: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	audio, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	defer audio.Close()

	text, err := r.Transcriber.Transcribe(ctx, filepath.Base(path), audio)
	if err != nil {
		return "", err
	}
	slog.Debug("transcribed utterance", "chars", len(text))
	return text, nil
}
