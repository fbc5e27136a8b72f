package skills

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/bdobrica/jarvis/internal/jarvis/llm"
)

var (
	// ErrDuplicate is returned when two skills share a name.
	ErrDuplicate = errors.New("skills: duplicate skill registration")
	// ErrSealed is returned when registering after Build.
	ErrSealed = errors.New("skills: registry already built")
	// ErrInvalid is returned for a malformed skill declaration.
	ErrInvalid = errors.New("skills: invalid skill")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Builder collects skills during startup.
type Builder struct {
	skills map[string]*Skill
	order  []string
	sealed bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{skills: make(map[string]*Skill)}
}

// Register validates s, compiles its schema and adds it.
func (b *Builder) Register(s Skill) error {
	if b.sealed {
		return fmt.Errorf("%w: cannot add %q", ErrSealed, s.Name)
	}
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalid, s.Name)
	}
	if s.Invoke == nil {
		return fmt.Errorf("%w: %q has no Invoke func", ErrInvalid, s.Name)
	}
	if _, dup := b.skills[s.Name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicate, s.Name)
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if p.Name == "" || seen[p.Name] {
			return fmt.Errorf("%w: %q has an empty or repeated parameter name", ErrInvalid, s.Name)
		}
		seen[p.Name] = true
	}
	s.Params = append([]Param(nil), s.Params...)
	s.Tags = append([]Tag(nil), s.Tags...)
	if err := s.compile(); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalid, s.Name, err)
	}
	b.skills[s.Name] = &s
	b.order = append(b.order, s.Name)
	return nil
}

// MustRegister registers every skill and panics on the first failure. A
// duplicate or malformed skill is a programming error that must stop startup.
func (b *Builder) MustRegister(skills ...Skill) {
	for _, s := range skills {
		if err := b.Register(s); err != nil {
			panic(err)
		}
	}
}

// Build seals the builder and returns the immutable registry.
func (b *Builder) Build() *Registry {
	b.sealed = true
	return &Registry{skills: b.skills, order: append([]string(nil), b.order...)}
}

// Registry is the immutable name → skill table.
type Registry struct {
	skills map[string]*Skill
	order  []string
}

// Resolve looks up a skill by exact name.
func (r *Registry) Resolve(name string) (*Skill, bool) {
	s, ok := r.skills[name]
	return s, ok
}

// Names returns skill names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered skills.
func (r *Registry) Len() int { return len(r.order) }

// Definitions returns tool definitions in registration order. When allow is
// non-nil only skills it accepts are included.
func (r *Registry) Definitions(allow func(name string) bool) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		if allow != nil && !allow(name) {
			continue
		}
		defs = append(defs, r.skills[name].Definition())
	}
	return defs
}
