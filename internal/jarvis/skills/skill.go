// Package skills defines the skill contract and the registry that maps
// model-declared tool names to concrete actions.
//
// Every skill declares an ordered parameter list. At registration time the
// list is rendered to a JSON Schema object, which is both advertised to the
// model and compiled for argument validation, so a skill's effect never runs
// with arguments its schema rejects. The registry is populated once at
// startup through a Builder and is read-only afterwards; it can be shared by
// any number of goroutines.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/jarvis/internal/jarvis/llm"
)

// Tag marks skills that need special treatment by the executor.
type Tag string

const (
	// TagSearch marks web searches, which are limited per user request.
	TagSearch Tag = "search"
	// TagMemory marks skills that write persisted facts.
	TagMemory Tag = "memory"
)

// ParamType is the JSON type of a parameter.
type ParamType string

const (
	String  ParamType = "string"
	Integer ParamType = "integer"
	Number  ParamType = "number"
	Boolean ParamType = "boolean"
)

// Param describes one named argument.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	Minimum     *float64
	Maximum     *float64
}

// Func performs a skill's effect. Failures are returned as errors carrying a
// message fit to show the model; the executor renders them as result text.
type Func func(ctx context.Context, args Args) (string, error)

// Skill is a named, schema-described capability.
type Skill struct {
	Name        string
	Description string
	Params      []Param
	Tags        []Tag
	Invoke      Func

	schema *jsonschema.Schema
}

// Bound returns a pointer to v, for Param.Minimum and Param.Maximum.
func Bound(v float64) *float64 { return &v }

// HasTag reports whether the skill carries t.
func (s *Skill) HasTag(t Tag) bool {
	for _, tag := range s.Tags {
		if tag == t {
			return true
		}
	}
	return false
}

// JSONSchema renders the parameter list as a JSON Schema object.
func (s *Skill) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Params))
	required := []string{}
	for _, p := range s.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, e := range p.Enum {
				enum[i] = e
			}
			prop["enum"] = enum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Definition returns the tool definition advertised to the model.
func (s *Skill) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionDef{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.JSONSchema(),
		},
	}
}

// Validate checks args against the compiled schema. Skills that were never
// registered have no schema and accept anything.
func (s *Skill) Validate(args Args) error {
	if s.schema == nil {
		return nil
	}
	if err := s.schema.Validate(map[string]any(args)); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return fmt.Errorf("%s", describe(ve))
		}
		return err
	}
	return nil
}

func (s *Skill) compile() error {
	raw, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	url := "mem://skills/" + s.Name + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	s.schema = schema
	return nil
}

// describe flattens a validation error tree into its leaf messages.
func describe(ve *jsonschema.ValidationError) string {
	if len(ve.Causes) == 0 {
		loc := strings.TrimPrefix(ve.InstanceLocation, "/")
		if loc == "" {
			return ve.Message
		}
		return loc + ": " + ve.Message
	}
	msgs := make([]string, 0, len(ve.Causes))
	for _, c := range ve.Causes {
		msgs = append(msgs, describe(c))
	}
	return strings.Join(msgs, "; ")
}
