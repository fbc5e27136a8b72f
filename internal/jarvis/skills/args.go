package skills

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Args is a decoded argument mapping. Numbers decoded by DecodeArgs are
// json.Number; the accessors accept any numeric representation.
type Args map[string]any

// MissingArgError is returned when a required argument is absent or blank.
type MissingArgError struct {
	Name string
}

func (e *MissingArgError) Error() string {
	return e.Name + " argument missing."
}

// ErrNotObject is returned by DecodeArgs for JSON that is not an object.
var ErrNotObject = errors.New("arguments are not a JSON object")

// DecodeArgs parses raw model arguments. Empty or whitespace-only input is an
// empty mapping.
func DecodeArgs(raw string) (Args, error) {
	if strings.TrimSpace(raw) == "" {
		return Args{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode arguments: trailing data after JSON value")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Args(m), nil
}

// Encode renders args back to JSON for logs and audit rows.
func (a Args) Encode() string {
	if len(a) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(a)); err != nil {
		return "{}"
	}
	return strings.TrimSpace(buf.String())
}

// String returns the named argument as text.
func (a Args) String(name string) (string, bool) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return fmt.Sprint(val), true
	}
}

// Float returns the named argument as a number.
func (a Args) Float(name string) (float64, bool) {
	v, ok := a[name]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns the named argument as an integer. Non-integral numbers are
// rejected.
func (a Args) Int(name string) (int, bool) {
	f, ok := a.Float(name)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// Bool returns the named argument as a boolean.
func (a Args) Bool(name string) (bool, bool) {
	switch val := a[name].(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(val)
		return b, err == nil
	default:
		return false, false
	}
}

// RequireString returns the named argument or a MissingArgError when it is
// absent or blank.
func (a Args) RequireString(name string) (string, error) {
	s, ok := a.String(name)
	if !ok || strings.TrimSpace(s) == "" {
		return "", &MissingArgError{Name: name}
	}
	return s, nil
}

// RequireInt returns the named integer argument or a MissingArgError.
func (a Args) RequireInt(name string) (int, error) {
	n, ok := a.Int(name)
	if !ok {
		return 0, &MissingArgError{Name: name}
	}
	return n, nil
}

// RequireFloat returns the named numeric argument or a MissingArgError.
func (a Args) RequireFloat(name string) (float64, error) {
	f, ok := a.Float(name)
	if !ok {
		return 0, &MissingArgError{Name: name}
	}
	return f, nil
}
