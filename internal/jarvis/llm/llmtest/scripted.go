// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/bdobrica/jarvis/internal/jarvis/llm"
)

// Step is one scripted reply: either a response or an error.
type Step struct {
	Response *llm.CompletionResponse
	Err      error
}

// Provider replays Steps in order and records every request it receives.
// Once the script is exhausted every call fails.
type Provider struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.CompletionRequest
}

// New returns a Provider that replays steps.
func New(steps ...Step) *Provider {
	return &Provider{steps: steps}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.steps) == 0 {
		return nil, fmt.Errorf("llmtest: script exhausted after %d calls", len(p.requests)-1)
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	return step.Response, step.Err
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}

// Text scripts a plain assistant reply.
func Text(content string) Step {
	return Step{Response: &llm.CompletionResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		FinishReason: "stop",
	}}
}

// Call is a compact tool call description for ToolCalls.
type Call struct {
	ID, Name, Args string
}

// ToolCalls scripts an assistant reply requesting the given tools.
func ToolCalls(calls ...Call) Step {
	msg := llm.Message{Role: llm.RoleAssistant}
	for _, c := range calls {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:       c.ID,
			Type:     "function",
			Function: llm.FunctionCall{Name: c.Name, Arguments: c.Args},
		})
	}
	return Step{Response: &llm.CompletionResponse{Message: msg, FinishReason: "tool_calls"}}
}

// Fail scripts a backend error.
func Fail(err error) Step {
	return Step{Err: err}
}
