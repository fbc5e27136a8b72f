// Package speech turns audio into text and text into speech.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/jarvis/common/retry"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
)

// DefaultWhisperModel is the transcription model requested by default.
const DefaultWhisperModel = "whisper-large-v3"

// Transcriber converts recorded audio to text. An empty transcript means
// nothing intelligible was said.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// WhisperConfig configures a WhisperTranscriber.
type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
	Retry    retry.Config
}

// WhisperTranscriber calls an OpenAI-compatible /audio/transcriptions
// endpoint.
type WhisperTranscriber struct {
	cfg    WhisperConfig
	client *http.Client
}

// NewWhisper returns a transcriber with defaults filled in.
func NewWhisper(cfg WhisperConfig) *WhisperTranscriber {
	if cfg.BaseURL == "" {
		cfg.BaseURL = llm.DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultWhisperModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = isTransient
	}
	return &WhisperTranscriber{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func isTransient(err error) bool {
	var se *llm.StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Transcribe implements Transcriber.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	body, contentType, err := w.encode(filename, audio)
	if err != nil {
		return "", err
	}
	var text string
	err = retry.Do(ctx, w.cfg.Retry, func() error {
		var callErr error
		text, callErr = w.post(ctx, body, contentType)
		return callErr
	})
	return strings.TrimSpace(text), err
}

func (w *WhisperTranscriber) encode(filename string, audio io.Reader) ([]byte, string, error) {
	if filename == "" {
		filename = "command.wav"
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, "", fmt.Errorf("transcribe: read audio: %w", err)
	}
	fields := map[string]string{"model": w.cfg.Model, "response_format": "json"}
	if w.cfg.Language != "" {
		fields["language"] = w.cfg.Language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("transcribe: build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("transcribe: build form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func (w *WhisperTranscriber) post(ctx context.Context, body []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/audio/transcriptions", bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("transcribe: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &llm.StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", retry.Permanent(fmt.Errorf("transcribe: decode response: %w", err))
	}
	return out.Text, nil
}
