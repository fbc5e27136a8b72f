// Package redact strips sensitive values from log lines and audit rows before
// they leave the process.
//
// Model API keys, the HTTP bearer token and the Matrix access token must never
// appear in logs, in the SQLite audit store or in chat replies. Skill
// arguments are also passed through Map before they are logged, because the
// model is free to put anything it heard into them.
package redact

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

// sensitiveWords are matched against whole words of a key, so "api_key" and
// "accessToken" are sensitive while "keycode" is not.
var sensitiveWords = map[string]bool{
	"password": true, "passwd": true, "pin": true, "token": true, "secret": true,
	"key": true, "apikey": true, "credential": true, "credentials": true,
	"auth": true, "authorization": true,
}

// String replaces every occurrence of each sensitive value in s. Values
// shorter than 4 characters are ignored.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// Map returns a copy of m in which non-empty string values under
// sensitive-looking keys are replaced by Placeholder. Nested maps are
// processed recursively; m itself is never modified.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = Map(val)
		case string:
			if val != "" && isSensitiveKey(k) {
				out[k] = Placeholder
			} else {
				out[k] = val
			}
		default:
			out[k] = v
		}
	}
	return out
}

// Truncate shortens s to at most n runes, appending "…" when cut. It keeps
// long tool results from flooding log lines.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func isSensitiveKey(key string) bool {
	for _, word := range keyWords(key) {
		if sensitiveWords[word] {
			return true
		}
	}
	return false
}

// keyWords splits a key on punctuation and camelCase boundaries and
// lower-cases the parts.
func keyWords(key string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	var prev rune
	for _, r := range key {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	return words
}
