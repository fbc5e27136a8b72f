// Package profile loads the assistant profile: the persona the model is asked
// to play and the rules that decide which skills it may use.
//
// The Loader keeps the live profile behind a lock so it can be re-applied
// (for example on SIGHUP) while conversations are running; the next system
// instruction picks up the change.
package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultPersona is the built-in persona text.
const DefaultPersona = `You are {name}, an AI assistant for Android with the personality of a witty, concise, and incredibly capable butler. Always address the user as "{address}".`

// Profile is the assistant's identity and skill rules.
type Profile struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	// Persona may reference {name} and {address}.
	Persona string `yaml:"persona"`
	Rules   []Rule `yaml:"rules"`
}

// Rule allows or denies skills whose name matches Skill ("*" matches all,
// a trailing "*" matches a prefix). Rules are first-match-wins.
type Rule struct {
	Name  string `yaml:"name"`
	Skill string `yaml:"skill"`
	Allow bool   `yaml:"allow"`
}

// Default returns the built-in profile: Jarvis, addressing the user as "sir",
// with every skill allowed.
func Default() *Profile {
	return &Profile{
		Name:    "Jarvis",
		Address: "sir",
		Persona: DefaultPersona,
		Rules:   []Rule{{Name: "allow-all", Skill: "*", Allow: true}},
	}
}

// PersonaText returns the persona with placeholders filled in.
func (p *Profile) PersonaText() string {
	r := strings.NewReplacer("{name}", p.Name, "{address}", p.Address)
	return r.Replace(p.Persona)
}

// Validate checks required fields and fills defaults.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if p.Address == "" {
		p.Address = "sir"
	}
	if strings.TrimSpace(p.Persona) == "" {
		p.Persona = DefaultPersona
	}
	for i, r := range p.Rules {
		if r.Skill == "" {
			return fmt.Errorf("rules[%d]: skill is required", i)
		}
		if r.Name == "" {
			p.Rules[i].Name = fmt.Sprintf("rule-%d", i)
		}
	}
	return nil
}

// Loader holds the live profile.
type Loader struct {
	mu      sync.RWMutex
	profile *Profile
	hash    string
	path    string
}

// NewLoader returns a Loader serving the default profile.
func NewLoader() *Loader {
	return &Loader{profile: Default()}
}

// LoadFile reads, validates and applies a YAML profile, remembering path for
// Reload.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	if err := l.Apply(data); err != nil {
		return err
	}
	l.mu.Lock()
	l.path = path
	l.mu.Unlock()
	return nil
}

// Reload re-reads the file given to LoadFile. Without one it is a no-op.
func (l *Loader) Reload() error {
	l.mu.RLock()
	path := l.path
	l.mu.RUnlock()
	if path == "" {
		return nil
	}
	return l.LoadFile(path)
}

// Apply parses and validates data, replacing the live profile only on success.
func (l *Loader) Apply(data []byte) error {
	p := Default()
	p.Rules = nil
	if err := yaml.Unmarshal(data, p); err != nil {
		return fmt.Errorf("parse profile yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	h := sha256.Sum256(data)
	hash := hex.EncodeToString(h[:])

	l.mu.Lock()
	l.profile = p
	l.hash = hash
	l.mu.Unlock()

	slog.Info("profile applied", "name", p.Name, "rules", len(p.Rules), "hash", hash[:12])
	return nil
}

// Profile returns the live profile. Callers must not modify it.
func (l *Loader) Profile() *Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.profile
}

// Hash returns the SHA-256 of the applied YAML, or "" for the default profile.
func (l *Loader) Hash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hash
}
