// Package gateway is the single point of contact with the model backend.
//
// Decide renders the conversation, with a freshly built system instruction,
// into a chat request and interprets the reply as a Decision. Backend
// failures never escape: they become a Degraded decision with a fixed
// apology, so the agent loop always receives something it can act on.
package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bdobrica/jarvis/internal/jarvis/conversation"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
	"github.com/bdobrica/jarvis/internal/jarvis/profile"
)

// FactSource supplies the saved user facts. *memory.FactStore satisfies it.
type FactSource interface {
	Facts() ([]string, error)
}

// ProfileSource supplies the live persona. *profile.Loader satisfies it.
type ProfileSource interface {
	Profile() *profile.Profile
}

// Config tunes the chat request.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// SearchTools are named in the one-search rule of the system instruction.
	SearchTools []string
}

// Gateway turns conversations into decisions.
type Gateway struct {
	provider llm.Provider
	facts    FactSource
	profiles ProfileSource
	cfg      Config
	metrics  *observability.Metrics
}

// New returns a Gateway. facts and profiles may be nil, in which case no
// facts and the default profile are used.
func New(provider llm.Provider, facts FactSource, profiles ProfileSource, cfg Config, metrics *observability.Metrics) *Gateway {
	return &Gateway{provider: provider, facts: facts, profiles: profiles, cfg: cfg, metrics: metrics}
}

// SystemInstruction builds the system message from the current persona and
// facts. It is called for every Decide so newly saved facts are visible on
// the next call.
func (g *Gateway) SystemInstruction(ctx context.Context) string {
	p := profile.Default()
	if g.profiles != nil {
		if live := g.profiles.Profile(); live != nil {
			p = live
		}
	}
	var facts []string
	if g.facts != nil {
		var err error
		facts, err = g.facts.Facts()
		if err != nil {
			observability.WithTrace(ctx).Warn("could not read saved facts", "err", err)
			facts = nil
		}
	}
	return buildSystemInstruction(p.PersonaText(), g.cfg.SearchTools, facts)
}

// Decide asks the model for the next step of conv, offering tools.
func (g *Gateway) Decide(ctx context.Context, conv *conversation.Conversation, tools []llm.ToolDefinition) Decision {
	ctx, span := observability.Tracer().Start(ctx, "gateway.decide")
	defer span.End()
	log := observability.WithTrace(ctx)

	turns := conv.Turns()
	req := llm.CompletionRequest{
		Model:     g.cfg.Model,
		Messages:  Render(g.SystemInstruction(ctx), turns),
		Tools:     tools,
		MaxTokens: g.cfg.MaxTokens,
	}
	if g.cfg.Temperature > 0 {
		req.Temperature = llm.Float(g.cfg.Temperature)
	}

	d := g.interpret(ctx, turns, req)
	span.SetAttributes(attribute.String("decision.kind", d.Kind.String()))
	g.metrics.IncDecision(d.Kind.String())
	if d.Kind == KindDegraded {
		log.Warn("model backend degraded", "err", d.Cause)
	} else {
		log.Debug("model decided", "kind", d.Kind, "requests", len(d.Requests))
	}
	return d
}

func (g *Gateway) interpret(ctx context.Context, turns []conversation.Turn, req llm.CompletionRequest) Decision {
	resp, err := g.provider.Complete(ctx, req)
	switch {
	case errors.Is(err, llm.ErrEmptyResponse):
		return Degraded(ApologyEmpty, err)
	case err != nil:
		return Degraded(ApologyFailure, err)
	case resp == nil:
		return Degraded(ApologyEmpty, llm.ErrEmptyResponse)
	}

	if len(resp.Message.ToolCalls) > 0 {
		used := usedRequestIDs(turns)
		reqs := make([]conversation.ToolRequest, 0, len(resp.Message.ToolCalls))
		for _, tc := range resp.Message.ToolCalls {
			id := tc.ID
			if id == "" || used[id] {
				id = "call_" + uuid.New().String()
			}
			used[id] = true
			reqs = append(reqs, conversation.ToolRequest{
				ID:           id,
				Name:         tc.Function.Name,
				RawArguments: tc.Function.Arguments,
			})
		}
		return ToolRequests(reqs)
	}

	if text := strings.TrimSpace(resp.Message.Content); text != "" {
		return Text(text)
	}
	return Degraded(ApologyEmpty, llm.ErrEmptyResponse)
}

func usedRequestIDs(turns []conversation.Turn) map[string]bool {
	used := make(map[string]bool)
	for _, t := range turns {
		for _, r := range t.ToolRequests {
			used[r.ID] = true
		}
	}
	return used
}

// Render converts a system instruction and conversation turns into chat
// messages.
func Render(system string, turns []conversation.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, t := range turns {
		switch t.Kind {
		case conversation.KindUser:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: t.Text})
		case conversation.KindAssistant:
			m := llm.Message{Role: llm.RoleAssistant, Content: t.Text}
			for _, r := range t.ToolRequests {
				args := r.RawArguments
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				m.ToolCalls = append(m.ToolCalls, llm.ToolCall{
					ID:       r.ID,
					Type:     "function",
					Function: llm.FunctionCall{Name: r.Name, Arguments: args},
				})
			}
			msgs = append(msgs, m)
		case conversation.KindToolResult:
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				Content:    t.Text,
				ToolCallID: t.RequestID,
				Name:       t.ToolName,
			})
		}
	}
	return msgs
}
