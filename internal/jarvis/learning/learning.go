// Package learning researches how a missing capability could be implemented
// and proposes a device command for it. Proposals are never executed,
// verified or saved.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/jarvis/common/redact"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
	"github.com/bdobrica/jarvis/internal/jarvis/search"
)

// Errors returned by Propose.
var (
	ErrNoResearch = errors.New("learning: web research yielded no results")
	ErrNoCommand  = errors.New("learning: model did not propose a command")
)

const maxResearchChars = 2000

// Proposal is an unverified candidate implementation of a skill.
type Proposal struct {
	Skill   string
	Command string
}

// Summary renders p for the model.
func (p Proposal) Summary() string {
	return fmt.Sprintf("Proposed adb shell command for '%s': %s. It has not been verified or saved, so it cannot be used yet.", p.Skill, p.Command)
}

// Researcher produces proposals from web research and a synthesis call.
type Researcher struct {
	searcher search.Searcher
	provider llm.Provider
	model    string
}

// NewResearcher returns a Researcher. An empty model uses the provider's
// default.
func NewResearcher(searcher search.Searcher, provider llm.Provider, model string) *Researcher {
	return &Researcher{searcher: searcher, provider: provider, model: model}
}

// Propose researches skillName and asks the model for a single adb shell
// command template achieving it.
func (r *Researcher) Propose(ctx context.Context, skillName, userQuery string) (Proposal, error) {
	log := slog.With("skill", skillName)
	log.Info("researching new skill")

	query := fmt.Sprintf(
		"What is the most reliable and modern method to achieve the goal '%s' on an Android device "+
			"using a single, direct 'adb shell' command? The user's original request was '%s'.",
		skillName, userQuery)
	results, err := r.searcher.Search(ctx, query)
	if err != nil {
		return Proposal{}, fmt.Errorf("%w: %v", ErrNoResearch, err)
	}
	if strings.TrimSpace(results) == "" || results == search.NoAnswer {
		return Proposal{}, ErrNoResearch
	}

	prompt := fmt.Sprintf(
		"You are an expert Android developer. Analyze the following web search results and extract the "+
			"single, most accurate 'adb shell' command to achieve the goal of '%s'. "+
			"The command may be a template with placeholders like {arg1}, {arg2}. "+
			"Your output MUST be a single JSON object with one key: 'command'.\n\nSEARCH RESULTS:\n%s",
		skillName, redact.Truncate(results, maxResearchChars))

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Model:       r.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: llm.Float(0),
		JSONMode:    true,
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("learning: synthesis: %w", err)
	}
	if resp == nil {
		return Proposal{}, ErrNoCommand
	}
	obj, err := llm.DecodeObject(resp.Message.Content)
	if err != nil {
		return Proposal{}, fmt.Errorf("learning: synthesis: %w", err)
	}
	cmd, _ := obj["command"].(string)
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return Proposal{}, ErrNoCommand
	}

	log.Info("proposed command", "command", cmd)
	return Proposal{Skill: skillName, Command: cmd}, nil
}
