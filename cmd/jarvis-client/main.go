// jarvis-client sends commands to a running `jarvis serve`.
//
// With a file argument it uploads the recording to POST /api/jarvis and
// prints the reply, the way a phone-side recorder would. Without arguments it
// reads one request per line from stdin and holds a continuous conversation
// through POST /api/chat.
//
// # Configuration (environment variables)
//
//	JARVIS_URL      Base URL of the server (default: "http://localhost:8000")
//	JARVIS_TOKEN    Bearer token for the HTTP API (optional)
//	JARVIS_TIMEOUT  Request timeout (default: "5m")
//	LOG_FORMAT      "text" or "json" (default: "text")
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bdobrica/jarvis/common/environment"
)

type config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

func loadConfig() config {
	return config{
		URL:     strings.TrimRight(environment.StringOr("JARVIS_URL", "http://localhost:8000"), "/"),
		Token:   os.Getenv("JARVIS_TOKEN"),
		Timeout: environment.DurationOr("JARVIS_TIMEOUT", 5*time.Minute),
	}
}

type client struct {
	cfg  config
	http *http.Client
}

func newClient(cfg config) *client {
	return &client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type jarvisResponse struct {
	Response string   `json:"response"`
	Commands []string `json:"commands"`
}

type chatRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	Continue  bool   `json:"continue,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// sendAudio uploads the recording at path and returns the assistant's reply.
func (c *client) sendAudio(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out jarvisResponse
	if err := c.post(ctx, "/api/jarvis", mw.FormDataContentType(), &body, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// chat sends text, continuing sessionID when set. It returns the reply and
// the session to continue with.
func (c *client) chat(ctx context.Context, sessionID, text string) (string, string, error) {
	b, err := json.Marshal(chatRequest{Text: text, SessionID: sessionID, Continue: sessionID == ""})
	if err != nil {
		return "", "", err
	}
	var out chatResponse
	if err := c.post(ctx, "/api/chat", "application/json", bytes.NewReader(b), &out); err != nil {
		return "", "", err
	}
	return out.Response, out.SessionID, nil
}

func (c *client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	url := c.cfg.URL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return fmt.Errorf("server returned HTTP %d for %s: %s", resp.StatusCode, url, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// converse reads lines from in and prints each reply to out until in is
// exhausted.
func (c *client) converse(ctx context.Context, in io.Reader, out io.Writer) error {
	sessionID := ""
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		reply, sid, err := c.chat(ctx, sessionID, text)
		if err != nil {
			return err
		}
		sessionID = sid
		fmt.Fprintf(out, "Jarvis: %s\n", reply)
	}
	return sc.Err()
}

func main() {
	if os.Getenv("LOG_FORMAT") == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newClient(loadConfig())
	var err error
	switch len(os.Args) {
	case 1:
		err = c.converse(ctx, os.Stdin, os.Stdout)
	case 2:
		var reply string
		if reply, err = c.sendAudio(ctx, os.Args[1]); err == nil {
			fmt.Println(reply)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: jarvis-client [recording.wav]")
		os.Exit(2)
	}
	if err != nil {
		slog.Error("jarvis-client failed", "err", err)
		os.Exit(1)
	}
}
