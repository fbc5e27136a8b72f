// Package llm defines the model backend interface and the message types the
// Model Gateway renders a conversation into.
//
// A backend is asked for one completion per Thinking step. The reply is either
// assistant text, one or more tool calls, or nothing usable; interpreting that
// is the gateway's job, not the provider's.
package llm

import (
	"context"
	"errors"
)

// Role is the role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ErrEmptyResponse is returned when the backend answered but the payload held
// no choices.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is a single chat message.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // when Role == RoleTool
	Name       string     `json:"name,omitempty"`         // skill name when Role == RoleTool
	// Images holds data: or https: URLs attached to a user message for
	// vision-capable models.
	Images []string `json:"images,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the tool name and raw JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Type     string      `json:"type"` // "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef is the schema of a callable function.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema object
}

// CompletionRequest is the input to a single inference call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
	// JSONMode asks the backend for a JSON object reply.
	JSONMode bool
}

// CompletionResponse is the output of a single inference call.
type CompletionResponse struct {
	Message Message
	// FinishReason is "stop" for a natural end and "tool_calls" when tools
	// were requested.
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage reports token consumption.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is implemented by every model backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Float returns a pointer to v, for CompletionRequest.Temperature.
func Float(v float64) *float64 { return &v }
