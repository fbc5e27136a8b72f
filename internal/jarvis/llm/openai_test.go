package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bdobrica/jarvis/common/retry"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_SendsToolsAndParsesToolCalls(t *testing.T) {
	var got map[string]any
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {"role": "assistant", "content": null,
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "battery_stats", "arguments": "{}"}}]},
				"finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}}`))
	})

	p := llm.NewOpenAI(llm.OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "test-model"})
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are Jarvis."},
			{Role: llm.RoleUser, Content: "What's my battery?"},
		},
		Tools: []llm.ToolDefinition{{Type: "function", Function: llm.FunctionDef{
			Name: "battery_stats", Parameters: map[string]any{"type": "object"},
		}}},
		Temperature: llm.Float(0.1),
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got["model"] != "test-model" {
		t.Errorf("expected default model, got %v", got["model"])
	}
	if got["tool_choice"] != "auto" {
		t.Errorf("expected tool_choice auto, got %v", got["tool_choice"])
	}
	if got["temperature"] != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", got["temperature"])
	}
	if _, ok := got["response_format"]; ok {
		t.Error("response_format should be omitted without JSONMode")
	}

	if resp.FinishReason != "tool_calls" || len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "battery_stats" || tc.Function.Arguments != "{}" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("expected usage 12, got %d", resp.Usage.TotalTokens)
	}
}

func TestComplete_RendersToolResultsAndImages(t *testing.T) {
	var got struct {
		Messages []map[string]any `json:"messages"`
	}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	})

	p := llm.NewOpenAI(llm.OpenAIConfig{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{
		{Role: llm.RoleUser, Content: "what is on screen?", Images: []string{"data:image/png;base64,AAAA"}},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Function: llm.FunctionCall{Name: "battery_stats"}}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Name: "battery_stats", Content: "level: 80"},
	}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	parts, ok := got.Messages[0]["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected 2 content parts for image message, got %v", got.Messages[0]["content"])
	}
	if got.Messages[1]["content"] != nil {
		t.Errorf("tool-call message content should be null, got %v", got.Messages[1]["content"])
	}
	calls := got.Messages[1]["tool_calls"].([]any)
	if calls[0].(map[string]any)["type"] != "function" {
		t.Errorf("tool call type should default to function: %v", calls[0])
	}
	if got.Messages[2]["tool_call_id"] != "c1" || got.Messages[2]["name"] != "battery_stats" {
		t.Errorf("tool result message not rendered: %v", got.Messages[2])
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	p := llm.NewOpenAI(llm.OpenAIConfig{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestComplete_StatusErrorRetriedWhenTransient(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello sir"},"finish_reason":"stop"}]}`))
	})

	p := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if resp.Message.Content != "hello sir" || calls.Load() != 2 {
		t.Fatalf("unexpected result %q after %d calls", resp.Message.Content, calls.Load())
	}
}

func TestComplete_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"auth"}}`))
	})

	p := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized || se.Message != "invalid api key" {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}
