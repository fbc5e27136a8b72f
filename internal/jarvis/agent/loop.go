// Package agent runs the tool-calling loop that turns one user utterance into
// one spoken reply.
//
// Each user turn moves through the states
//
//	AwaitingInput → Thinking → (Executing → Thinking)* → Responding
//
// Thinking asks the model gateway for a decision; Executing runs the
// requested skills concurrently and appends their results in request order.
// The loop always ends with an assistant text turn, even when the backend
// fails or the round limit is reached, so the conversation stays well formed.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bdobrica/jarvis/common/trace"
	"github.com/bdobrica/jarvis/internal/jarvis/conversation"
	"github.com/bdobrica/jarvis/internal/jarvis/executor"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
)

// DefaultMaxRounds bounds tool-execution rounds per user turn.
const DefaultMaxRounds = 8

// RoundLimitReply ends a turn that hit the round limit.
const RoundLimitReply = "I'm sorry, sir, that request took more steps than I'm permitted. Perhaps we could try something simpler."

// State is a loop state.
type State int

const (
	StateAwaitingInput State = iota
	StateThinking
	StateExecuting
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateThinking:
		return "thinking"
	case StateExecuting:
		return "executing"
	case StateResponding:
		return "responding"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Decider chooses the next step. *gateway.Gateway satisfies it.
type Decider interface {
	Decide(ctx context.Context, conv *conversation.Conversation, tools []llm.ToolDefinition) gateway.Decision
}

// Runner executes one round of tool requests. *executor.Executor satisfies it.
type Runner interface {
	ExecuteAll(ctx context.Context, reqs []conversation.ToolRequest, budget *executor.Budget) []string
}

// Options tunes a Loop.
type Options struct {
	// MaxRounds caps Executing rounds per user turn; zero means
	// DefaultMaxRounds.
	MaxRounds int
	// MaxSearches caps search-tagged skills per user turn; zero or negative
	// disables the cap.
	MaxSearches int
	Metrics     *observability.Metrics
	// OnState, when set, is called on every state transition.
	OnState func(ctx context.Context, s State)
}

// Reply is the outcome of one user turn.
type Reply struct {
	Text      string
	TraceID   string
	Rounds    int
	ToolCalls int
	// Degraded is set when the final text is a backend-failure apology.
	Degraded bool
	// Capped is set when the round limit ended the turn.
	Capped bool
}

// Outcome labels the reply for metrics and audit rows.
func (r Reply) Outcome() string {
	switch {
	case r.Capped:
		return "capped"
	case r.Degraded:
		return "degraded"
	default:
		return "text"
	}
}

// Loop drives user turns. It holds no conversation state of its own and may
// serve many conversations concurrently.
type Loop struct {
	decider Decider
	runner  Runner
	tools   func() []llm.ToolDefinition
	opts    Options
}

// New returns a Loop. tools is called once per user turn, so the advertised
// skill set can follow policy changes.
func New(decider Decider, runner Runner, tools func() []llm.ToolDefinition, opts Options) *Loop {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if tools == nil {
		tools = func() []llm.ToolDefinition { return nil }
	}
	return &Loop{decider: decider, runner: runner, tools: tools, opts: opts}
}

func (l *Loop) enter(ctx context.Context, s State) {
	if l.opts.OnState != nil {
		l.opts.OnState(ctx, s)
	}
}

// RespondOnce handles text on a fresh conversation that is discarded
// afterwards.
func (l *Loop) RespondOnce(ctx context.Context, text string) Reply {
	return l.Respond(ctx, conversation.New(), text)
}

// Respond appends text to conv as a user turn and runs the loop until the
// model answers in text. The caller must not use conv concurrently.
func (l *Loop) Respond(ctx context.Context, conv *conversation.Conversation, text string) Reply {
	ctx, traceID := trace.Ensure(ctx)
	ctx, span := observability.Tracer().Start(ctx, "agent.turn")
	defer span.End()
	log := observability.WithTrace(ctx).With("conversation_id", conv.ID())
	start := time.Now()

	log.Info("user turn", "text_len", len(text))
	conv.Append(conversation.UserTurn(text))
	budget := executor.NewBudget(l.opts.MaxSearches)
	tools := l.tools()
	reply := Reply{TraceID: traceID}

	for {
		l.enter(ctx, StateThinking)
		d := l.decider.Decide(ctx, conv, tools)

		if d.Kind != gateway.KindToolRequests {
			conv.Append(d.Turn())
			reply.Text = d.Text
			reply.Degraded = d.Kind == gateway.KindDegraded
			break
		}
		if reply.Rounds >= l.opts.MaxRounds {
			log.Warn("round limit reached", "max_rounds", l.opts.MaxRounds)
			conv.Append(conversation.AssistantText(RoundLimitReply))
			reply.Text = RoundLimitReply
			reply.Capped = true
			break
		}

		conv.Append(d.Turn())
		l.enter(ctx, StateExecuting)
		results := l.runner.ExecuteAll(ctx, d.Requests, budget)
		for i, req := range d.Requests {
			conv.Append(conversation.ToolResult(req, results[i]))
		}
		reply.Rounds++
		reply.ToolCalls += len(d.Requests)
	}

	l.enter(ctx, StateResponding)
	elapsed := time.Since(start)
	l.opts.Metrics.ObserveTurn(reply.Outcome(), reply.Rounds, elapsed)
	span.SetAttributes(
		attribute.String("turn.outcome", reply.Outcome()),
		attribute.Int("turn.rounds", reply.Rounds),
		attribute.Int("turn.tool_calls", reply.ToolCalls),
	)
	log.Info("turn complete",
		"outcome", reply.Outcome(),
		"rounds", reply.Rounds,
		"tool_calls", reply.ToolCalls,
		"duration_ms", elapsed.Milliseconds(),
	)
	return reply
}
