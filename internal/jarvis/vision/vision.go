// Package vision answers questions about the device screen with a
// vision-capable model.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/jarvis/internal/jarvis/device"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
)

// DefaultModel is a Groq-hosted model that accepts images.
const DefaultModel = "meta-llama/llama-4-maverick-17b-128e-instruct"

const defaultMaxTokens = 300

// Analyzer captures the screen and asks the model about it.
type Analyzer struct {
	provider  llm.Provider
	runner    device.Runner
	model     string
	maxTokens int
}

// NewAnalyzer returns an Analyzer. An empty model uses DefaultModel.
func NewAnalyzer(provider llm.Provider, runner device.Runner, model string) *Analyzer {
	if model == "" {
		model = DefaultModel
	}
	return &Analyzer{provider: provider, runner: runner, model: model, maxTokens: defaultMaxTokens}
}

// Analyze answers question about the current screen.
func (a *Analyzer) Analyze(ctx context.Context, question string) (string, error) {
	png, err := device.Screenshot(ctx, a.runner)
	if err != nil {
		return "", err
	}
	return a.Describe(ctx, question, png)
}

// Describe answers question about a PNG image.
func (a *Analyzer) Describe(ctx context.Context, question string, png []byte) (string, error) {
	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: question,
			Images:  []string{DataURL(png)},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision model: %w", err)
	}
	if resp == nil {
		return "", errors.New("vision model: no response")
	}
	answer := strings.TrimSpace(resp.Message.Content)
	if answer == "" {
		return "", llm.ErrEmptyResponse
	}
	return answer, nil
}

// DataURL encodes png as a data: URL.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
