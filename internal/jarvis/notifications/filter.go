package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bdobrica/jarvis/internal/jarvis/llm"
)

const filterPrompt = "You are an intelligent notification filter. Your job is to analyze this list of raw Android " +
	"notifications and filter out everything that is unimportant spam, ads, promotions, or ongoing status " +
	"updates (like music playing). Return a JSON object with a single key \"important\" holding a list of ONLY the " +
	"important notifications, such as messages from people, missed calls, financial transactions, or significant " +
	"alerts. If there are no important notifications, return an empty list. Here is the list:\n%s"

// Filter keeps the important notifications.
type Filter interface {
	Filter(ctx context.Context, notifications []string) ([]string, error)
}

// LLMFilter asks the model which notifications matter.
type LLMFilter struct {
	provider llm.Provider
	model    string
}

// NewLLMFilter returns a model-backed Filter.
func NewLLMFilter(provider llm.Provider, model string) *LLMFilter {
	return &LLMFilter{provider: provider, model: model}
}

// Filter implements Filter.
func (f *LLMFilter) Filter(ctx context.Context, notifications []string) ([]string, error) {
	if len(notifications) == 0 {
		return nil, nil
	}
	list, err := json.Marshal(notifications)
	if err != nil {
		return nil, err
	}
	resp, err := f.provider.Complete(ctx, llm.CompletionRequest{
		Model:       f.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(filterPrompt, list)}},
		Temperature: llm.Float(0.1),
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("notification filter: %w", err)
	}
	if resp == nil {
		return nil, llm.ErrEmptyResponse
	}
	obj, err := llm.DecodeObject(resp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("notification filter: %w", err)
	}
	return firstList(obj), nil
}

// firstList returns the strings of the "important" list, or of the first
// list-valued key in key order when the model used another name.
func firstList(obj map[string]any) []string {
	if l, ok := obj["important"].([]any); ok {
		return stringsOf(l)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if l, ok := obj[k].([]any); ok {
			return stringsOf(l)
		}
	}
	return nil
}

func stringsOf(l []any) []string {
	out := make([]string, 0, len(l))
	for _, v := range l {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
