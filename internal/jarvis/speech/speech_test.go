package speech_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bdobrica/jarvis/common/retry"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
	"github.com/bdobrica/jarvis/internal/jarvis/speech"
)

func TestWhisper_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk" {
			t.Errorf("missing auth header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("model"); got != speech.DefaultWhisperModel {
			t.Errorf("model = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "cmd.wav" || string(data) != "RIFFdata" {
			t.Errorf("unexpected file %q: %q", hdr.Filename, data)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " open youtube "})
	}))
	defer srv.Close()

	w := speech.NewWhisper(speech.WhisperConfig{APIKey: "sk", BaseURL: srv.URL})
	got, err := w.Transcribe(context.Background(), "cmd.wav", strings.NewReader("RIFFdata"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "open youtube" {
		t.Errorf("got %q", got)
	}
}

func TestWhisper_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	w := speech.NewWhisper(speech.WhisperConfig{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	got, err := w.Transcribe(context.Background(), "", bytes.NewReader([]byte("x")))
	if err != nil || got != "hello" {
		t.Fatalf("got %q, %v", got, err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestWhisper_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := speech.NewWhisper(speech.WhisperConfig{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	_, err := w.Transcribe(context.Background(), "a.wav", strings.NewReader("x"))
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestLineListener(t *testing.T) {
	var prompt bytes.Buffer
	l := speech.NewLineListener(strings.NewReader("hello\n\nwhat time is it\n"), &prompt)
	ctx := context.Background()

	for _, want := range []string{"hello", "", "what time is it"} {
		got, err := l.Listen(ctx)
		if err != nil || got != want {
			t.Fatalf("got %q, %v; want %q", got, err, want)
		}
	}
	if _, err := l.Listen(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if !strings.HasPrefix(prompt.String(), "> ") {
		t.Errorf("prompt not written: %q", prompt.String())
	}
}

func TestLineListener_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	l := speech.NewLineListener(pr, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Listen(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWriterSpeaker(t *testing.T) {
	var buf bytes.Buffer
	s := speech.NewWriterSpeaker(&buf, "Jarvis")
	if err := s.Speak(context.Background(), "At your service, sir."); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Jarvis: At your service, sir.\n" {
		t.Errorf("got %q", buf.String())
	}
}

type failingSpeaker struct{ err error }

func (f failingSpeaker) Speak(context.Context, string) error { return f.err }

func TestSpeakers_FirstError(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("tts down")
	ss := speech.Speakers{failingSpeaker{err: boom}, speech.NewWriterSpeaker(&buf, "")}
	if err := ss.Speak(context.Background(), "hi"); !errors.Is(err, boom) {
		t.Fatalf("expected first error, got %v", err)
	}
	if buf.String() != "hi\n" {
		t.Errorf("later speakers should still speak, got %q", buf.String())
	}
}

type echoTranscriber struct{}

func (echoTranscriber) Transcribe(_ context.Context, _ string, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	return string(data), err
}

func TestRecorderListener(t *testing.T) {
	r := &speech.RecorderListener{
		Command:     []string{"sh", "-c", "printf 'take a screenshot' > " + speech.FilePlaceholder},
		Transcriber: echoTranscriber{},
		Dir:         t.TempDir(),
	}
	got, err := r.Listen(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "take a screenshot" {
		t.Errorf("got %q", got)
	}
}

func TestRecorderListener_CommandFails(t *testing.T) {
	r := &speech.RecorderListener{
		Command:     []string{"sh", "-c", "echo no mic >&2; exit 1"},
		Transcriber: echoTranscriber{},
		Dir:         t.TempDir(),
	}
	_, err := r.Listen(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no mic") {
		t.Fatalf("expected recorder error, got %v", err)
	}
}

func TestCommandSpeaker(t *testing.T) {
	if err := (speech.CommandSpeaker{Command: []string{"true"}}).Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (speech.CommandSpeaker{}).Speak(context.Background(), "hello"); err == nil {
		t.Fatal("expected error without a command")
	}
}
