// Package policy decides whether the model may use a given skill, based on
// the live assistant profile. Evaluation is deterministic and involves no
// model call.
package policy

import (
	"fmt"
	"strings"

	"github.com/bdobrica/jarvis/internal/jarvis/profile"
)

// Decision is the outcome of policy evaluation.
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionDeny
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// Result is the full output of an evaluation.
type Result struct {
	Decision    Decision
	MatchedRule string
	Reason      string
}

// ProfileProvider returns the live profile. *profile.Loader satisfies it.
type ProfileProvider interface {
	Profile() *profile.Profile
}

// Engine evaluates skill rules.
type Engine struct {
	provider ProfileProvider
}

// New returns an Engine reading rules from provider.
func New(provider ProfileProvider) *Engine {
	return &Engine{provider: provider}
}

// Evaluate decides whether skill may run. Rules are first-match-wins. A
// profile without rules allows everything; a profile with rules denies
// anything no rule matches.
func (e *Engine) Evaluate(skill string) Result {
	p := e.provider.Profile()
	if p == nil || len(p.Rules) == 0 {
		return Result{Decision: DecisionAllow, MatchedRule: "<no rules>"}
	}
	for _, r := range p.Rules {
		if !matchesGlob(r.Skill, skill) {
			continue
		}
		if !r.Allow {
			return Result{
				Decision:    DecisionDeny,
				MatchedRule: r.Name,
				Reason:      fmt.Sprintf("rule %q denies skill %q", r.Name, skill),
			}
		}
		return Result{Decision: DecisionAllow, MatchedRule: r.Name}
	}
	return Result{
		Decision:    DecisionDeny,
		MatchedRule: "<default>",
		Reason:      fmt.Sprintf("no rule matches skill %q; default deny", skill),
	}
}

// Allowed is Evaluate reduced to a predicate, suitable for filtering the tool
// list advertised to the model.
func (e *Engine) Allowed(skill string) bool {
	return e.Evaluate(skill).Decision == DecisionAllow
}

// matchesGlob supports "*", exact names and "prefix*".
func matchesGlob(pattern, value string) bool {
	if pattern == "*" || pattern == value {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(value, prefix)
	}
	return false
}
