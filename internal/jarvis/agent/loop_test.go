package agent_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/jarvis/internal/jarvis/agent"
	"github.com/bdobrica/jarvis/internal/jarvis/conversation"
	"github.com/bdobrica/jarvis/internal/jarvis/executor"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
	"github.com/bdobrica/jarvis/internal/jarvis/llm/llmtest"
	"github.com/bdobrica/jarvis/internal/jarvis/skills"
)

// stateLog records state transitions.
type stateLog struct {
	mu     sync.Mutex
	states []agent.State
}

func (s *stateLog) record(_ context.Context, st agent.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *stateLog) get() []agent.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.State(nil), s.states...)
}

func fixedSkill(name, result string) skills.Skill {
	return skills.Skill{Name: name, Invoke: func(context.Context, skills.Args) (string, error) {
		return result, nil
	}}
}

type harness struct {
	provider *llmtest.Provider
	loop     *agent.Loop
	states   *stateLog
}

func newHarness(t *testing.T, opts agent.Options, provider *llmtest.Provider, ss ...skills.Skill) *harness {
	t.Helper()
	b := skills.NewBuilder()
	b.MustRegister(ss...)
	reg := b.Build()

	states := &stateLog{}
	opts.OnState = states.record
	gw := gateway.New(provider, nil, nil, gateway.Config{Model: "test"}, nil)
	ex := executor.New(reg, executor.Options{})
	loop := agent.New(gw, ex, func() []llm.ToolDefinition { return reg.Definitions(nil) }, opts)
	return &harness{provider: provider, loop: loop, states: states}
}

func assertStates(t *testing.T, got []agent.State, want ...agent.State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("states: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states: got %v, want %v", got, want)
		}
	}
}

// --- scenarios ---

func TestRespond_ToolThenAnswer(t *testing.T) {
	p := llmtest.New(
		llmtest.ToolCalls(llmtest.Call{ID: "c1", Name: "battery_stats", Args: "{}"}),
		llmtest.Text("Your battery is at 80 percent, sir."),
	)
	h := newHarness(t, agent.Options{}, p, fixedSkill("battery_stats", "Current Battery Service state:\n  level: 80"))

	conv := conversation.New()
	reply := h.loop.Respond(context.Background(), conv, "what's my battery?")

	if reply.Text != "Your battery is at 80 percent, sir." || reply.Rounds != 1 || reply.ToolCalls != 1 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if reply.TraceID == "" || reply.Outcome() != "text" {
		t.Errorf("unexpected trace/outcome %q %q", reply.TraceID, reply.Outcome())
	}
	turns := conv.Turns()
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	if turns[2].Kind != conversation.KindToolResult || turns[2].RequestID != "c1" || !strings.Contains(turns[2].Text, "level: 80") {
		t.Errorf("unexpected tool result turn %+v", turns[2])
	}
	if err := conv.Validate(); err != nil {
		t.Fatalf("conversation not well formed: %v", err)
	}
	assertStates(t, h.states.get(), agent.StateThinking, agent.StateExecuting, agent.StateThinking, agent.StateResponding)

	tools := p.Requests()[0].Tools
	if len(tools) != 1 || tools[0].Function.Name != "battery_stats" {
		t.Errorf("expected battery_stats to be offered, got %+v", tools)
	}
}

func TestRespond_UnknownSkillContinues(t *testing.T) {
	p := llmtest.New(
		llmtest.ToolCalls(llmtest.Call{ID: "c1", Name: "foo", Args: `{"x": 1}`}),
		llmtest.Text("I'm afraid I can't do that, sir."),
	)
	h := newHarness(t, agent.Options{}, p, fixedSkill("battery_stats", "80"))

	reply := h.loop.RespondOnce(context.Background(), "do foo")
	if reply.Text != "I'm afraid I can't do that, sir." {
		t.Fatalf("unexpected reply %+v", reply)
	}
	second := p.Requests()[1].Messages
	last := second[len(second)-1]
	if last.Role != llm.RoleTool || last.Content != "Unknown skill 'foo'." {
		t.Fatalf("expected unknown-skill result to reach the model, got %+v", last)
	}
}

func TestRespond_EmptyBackendPayload(t *testing.T) {
	p := llmtest.New(llmtest.Fail(llm.ErrEmptyResponse))
	h := newHarness(t, agent.Options{}, p)

	conv := conversation.New()
	reply := h.loop.Respond(context.Background(), conv, "hello")
	if reply.Text != gateway.ApologyEmpty || !reply.Degraded || reply.Outcome() != "degraded" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if err := conv.Validate(); err != nil {
		t.Fatalf("conversation not well formed: %v", err)
	}
	assertStates(t, h.states.get(), agent.StateThinking, agent.StateResponding)
}

func TestRespond_ConcurrentResultsInRequestOrder(t *testing.T) {
	fastDone := make(chan struct{})
	slow := skills.Skill{Name: "slow", Invoke: func(context.Context, skills.Args) (string, error) {
		select {
		case <-fastDone:
			return "slow done", nil
		case <-time.After(2 * time.Second):
			return "", errors.New("not concurrent")
		}
	}}
	fast := skills.Skill{Name: "fast", Invoke: func(context.Context, skills.Args) (string, error) {
		close(fastDone)
		return "fast done", nil
	}}
	p := llmtest.New(
		llmtest.ToolCalls(llmtest.Call{ID: "r1", Name: "slow"}, llmtest.Call{ID: "r2", Name: "fast"}),
		llmtest.Text("Both done, sir."),
	)
	h := newHarness(t, agent.Options{}, p, slow, fast)

	conv := conversation.New()
	h.loop.Respond(context.Background(), conv, "do both")
	turns := conv.Turns()
	if turns[2].RequestID != "r1" || turns[2].Text != "slow done" || turns[3].RequestID != "r2" || turns[3].Text != "fast done" {
		t.Fatalf("results out of order: %+v %+v", turns[2], turns[3])
	}
}

func TestRespond_RoundLimit(t *testing.T) {
	p := llmtest.New(
		llmtest.ToolCalls(llmtest.Call{ID: "a", Name: "press_back"}),
		llmtest.ToolCalls(llmtest.Call{ID: "b", Name: "press_back"}),
		llmtest.ToolCalls(llmtest.Call{ID: "c", Name: "press_back"}),
	)
	h := newHarness(t, agent.Options{MaxRounds: 2}, p, fixedSkill("press_back", "ok"))

	conv := conversation.New()
	reply := h.loop.Respond(context.Background(), conv, "go back forever")
	if !reply.Capped || reply.Text != agent.RoundLimitReply || reply.Rounds != 2 {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if err := conv.Validate(); err != nil {
		t.Fatalf("conversation not well formed: %v", err)
	}
	if last, _ := conv.Last(); last.Text != agent.RoundLimitReply {
		t.Errorf("expected round-limit text as last turn, got %+v", last)
	}
}

func TestRespond_SearchBudgetAcrossRounds(t *testing.T) {
	search := skills.Skill{
		Name: "silent_web_search", Tags: []skills.Tag{skills.TagSearch},
		Invoke: func(context.Context, skills.Args) (string, error) { return "It is sunny.", nil },
	}
	p := llmtest.New(
		llmtest.ToolCalls(llmtest.Call{ID: "s1", Name: "silent_web_search", Args: `{"query":"weather"}`}),
		llmtest.ToolCalls(llmtest.Call{ID: "s2", Name: "silent_web_search", Args: `{"query":"weather today"}`}),
		llmtest.Text("It is sunny, sir."),
	)
	h := newHarness(t, agent.Options{MaxSearches: 1}, p, search)

	conv := conversation.New()
	h.loop.Respond(context.Background(), conv, "weather?")
	turns := conv.Turns()
	if turns[2].Text != "It is sunny." || turns[4].Text != executor.SearchLimitResult {
		t.Fatalf("unexpected search results %q / %q", turns[2].Text, turns[4].Text)
	}

	// A new user turn gets a fresh budget.
	p2 := llmtest.New(
		llmtest.ToolCalls(llmtest.Call{ID: "s3", Name: "silent_web_search", Args: `{"query":"news"}`}),
		llmtest.Text("Nothing new, sir."),
	)
	h2 := newHarness(t, agent.Options{MaxSearches: 1}, p2, search)
	h2.loop.Respond(context.Background(), conv, "news?")
	if got := conv.Turns()[len(conv.Turns())-2].Text; got != "It is sunny." {
		t.Fatalf("expected fresh budget for new turn, got %q", got)
	}
}

// --- sessions ---

func TestSession_KeepsHistoryButRespondOnceDoesNot(t *testing.T) {
	p := llmtest.New(llmtest.Text("Hello, sir."), llmtest.Text("You said hello."), llmtest.Text("Fresh."))
	h := newHarness(t, agent.Options{}, p)
	ctx := context.Background()

	s := h.loop.NewSession()
	s.Handle(ctx, "hello")
	s.Handle(ctx, "what did I say?")
	h.loop.RespondOnce(ctx, "stateless")

	reqs := p.Requests()
	if n := len(reqs[1].Messages); n != 4 {
		t.Errorf("second session call should carry history (4 messages), got %d", n)
	}
	if n := len(reqs[2].Messages); n != 2 {
		t.Errorf("stateless call should carry only system + user, got %d", n)
	}
	if len(s.Turns()) != 4 || s.ID() == "" {
		t.Errorf("unexpected session state: %d turns, id %q", len(s.Turns()), s.ID())
	}
}

// scriptedListener replays utterances, then io.EOF.
type scriptedListener struct {
	items []any // string or error
}

func (l *scriptedListener) Listen(context.Context) (string, error) {
	if len(l.items) == 0 {
		return "", io.EOF
	}
	item := l.items[0]
	l.items = l.items[1:]
	if err, ok := item.(error); ok {
		return "", err
	}
	return item.(string), nil
}

type recordingSpeaker struct {
	said []string
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.said = append(s.said, text)
	return nil
}

func TestSessionRun_SpeaksRepliesUntilEOF(t *testing.T) {
	p := llmtest.New(llmtest.Text("At your service, sir."), llmtest.Text("Goodnight, sir."))
	h := newHarness(t, agent.Options{}, p)
	listener := &scriptedListener{items: []any{"", "   ", "hello jarvis", "goodnight"}}
	speaker := &recordingSpeaker{}

	if err := h.loop.NewSession().Run(context.Background(), listener, speaker); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(speaker.said) != 2 || speaker.said[0] != "At your service, sir." || speaker.said[1] != "Goodnight, sir." {
		t.Fatalf("unexpected speech %q", speaker.said)
	}
	states := h.states.get()
	if states[0] != agent.StateAwaitingInput || states[len(states)-1] != agent.StateAwaitingInput {
		t.Errorf("expected run to start and end awaiting input, got %v", states)
	}
}

func TestSessionRun_ReportsTurns(t *testing.T) {
	p := llmtest.New(llmtest.Text("Done, sir."))
	h := newHarness(t, agent.Options{}, p)

	var texts []string
	var replies []agent.Reply
	s := h.loop.NewSession().OnTurn(func(_ context.Context, text string, reply agent.Reply, _ time.Duration) {
		texts = append(texts, text)
		replies = append(replies, reply)
	})
	if err := s.Run(context.Background(), &scriptedListener{items: []any{"  lock the phone "}}, &recordingSpeaker{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(texts) != 1 || texts[0] != "lock the phone" {
		t.Fatalf("unexpected turn texts %q", texts)
	}
	if replies[0].Text != "Done, sir." || replies[0].TraceID == "" {
		t.Errorf("unexpected reply %+v", replies[0])
	}
}

func TestSessionRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, agent.Options{}, llmtest.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.loop.NewSession().Run(ctx, &scriptedListener{items: []any{"hi"}}, &recordingSpeaker{}); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	if agent.StateThinking.String() != "thinking" || agent.State(42).String() != "State(42)" {
		t.Fatal("unexpected state names")
	}
}
