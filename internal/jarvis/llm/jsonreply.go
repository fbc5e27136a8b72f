package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNotJSONObject is returned by DecodeObject for replies that are not a
// JSON object.
var ErrNotJSONObject = errors.New("llm: reply is not a JSON object")

// DecodeObject parses a JSON-mode reply. Markdown code fences are stripped
// and slightly malformed JSON is repaired before giving up.
func DecodeObject(content string) (map[string]any, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyResponse
	}

	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(s)
		if rerr != nil {
			return nil, fmt.Errorf("decode model reply: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &v); err != nil {
			return nil, fmt.Errorf("decode repaired model reply: %w", err)
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotJSONObject
	}
	return obj, nil
}
