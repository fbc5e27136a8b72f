package learning_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/jarvis/internal/jarvis/learning"
	"github.com/bdobrica/jarvis/internal/jarvis/llm/llmtest"
	"github.com/bdobrica/jarvis/internal/jarvis/search"
)

func staticSearch(answer string, err error) search.Searcher {
	return search.Func(func(ctx context.Context, q string) (string, error) { return answer, err })
}

func TestPropose(t *testing.T) {
	provider := llmtest.New(llmtest.Text(`{"command": "svc wifi enable"}`))
	r := learning.NewResearcher(staticSearch("Use svc wifi enable to turn on Wi-Fi.", nil), provider, "m")

	p, err := r.Propose(context.Background(), "enable_wifi", "turn on wifi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Command != "svc wifi enable" || p.Skill != "enable_wifi" {
		t.Errorf("unexpected proposal: %+v", p)
	}
	if !strings.Contains(p.Summary(), "not been verified") {
		t.Errorf("summary should flag the proposal as unverified: %s", p.Summary())
	}

	req := provider.Requests()[0]
	if !req.JSONMode || req.Model != "m" {
		t.Errorf("unexpected request: %+v", req)
	}
	if !strings.Contains(req.Messages[0].Content, "Use svc wifi enable") {
		t.Error("search results missing from synthesis prompt")
	}
}

func TestPropose_NoResearch(t *testing.T) {
	provider := llmtest.New()
	for _, s := range []search.Searcher{
		staticSearch(search.NoAnswer, nil),
		staticSearch("", errors.New("down")),
	} {
		_, err := learning.NewResearcher(s, provider, "").Propose(context.Background(), "x", "y")
		if !errors.Is(err, learning.ErrNoResearch) {
			t.Errorf("expected ErrNoResearch, got %v", err)
		}
	}
	if len(provider.Requests()) != 0 {
		t.Error("model should not be called without research")
	}
}

func TestPropose_NoCommand(t *testing.T) {
	provider := llmtest.New(llmtest.Text(`{"command": ""}`))
	_, err := learning.NewResearcher(staticSearch("results", nil), provider, "").Propose(context.Background(), "x", "y")
	if !errors.Is(err, learning.ErrNoCommand) {
		t.Fatalf("expected ErrNoCommand, got %v", err)
	}
}
