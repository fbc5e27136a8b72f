// Package conversation holds the ordered record of one dialogue between the
// user, the model and the skills it invoked.
//
// A Conversation is append-only and has a single writer: the agent loop that
// owns it. Insertion order is the model's context order.
package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind distinguishes the three turn shapes.
type Kind int

const (
	KindUser Kind = iota
	KindAssistant
	KindToolResult
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAssistant:
		return "assistant"
	case KindToolResult:
		return "tool_result"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ToolRequest is one model-requested skill invocation. RawArguments is the
// model's JSON text, unparsed.
type ToolRequest struct {
	ID           string
	Name         string
	RawArguments string
}

// Turn is one entry in a Conversation.
//
// A user turn carries Text. An assistant turn carries exactly one of Text or
// a non-empty ToolRequests. A tool-result turn carries RequestID, ToolName
// and Text (the result string).
type Turn struct {
	Kind         Kind
	Text         string
	ToolRequests []ToolRequest
	RequestID    string
	ToolName     string
}

// UserTurn returns a user utterance turn.
func UserTurn(text string) Turn {
	return Turn{Kind: KindUser, Text: text}
}

// AssistantText returns a final assistant reply turn.
func AssistantText(text string) Turn {
	return Turn{Kind: KindAssistant, Text: text}
}

// AssistantTools returns an assistant turn requesting tools.
func AssistantTools(reqs []ToolRequest) Turn {
	return Turn{Kind: KindAssistant, ToolRequests: append([]ToolRequest(nil), reqs...)}
}

// ToolResult returns the result turn answering req.
func ToolResult(req ToolRequest, result string) Turn {
	return Turn{Kind: KindToolResult, RequestID: req.ID, ToolName: req.Name, Text: result}
}

// Conversation is an ordered, append-only list of turns.
type Conversation struct {
	id    string
	turns []Turn
}

// New returns an empty conversation with a fresh ID.
func New() *Conversation {
	return &Conversation{id: uuid.New().String()}
}

// ID returns the conversation's stable identifier.
func (c *Conversation) ID() string { return c.id }

// Append adds turns in order.
func (c *Conversation) Append(turns ...Turn) {
	c.turns = append(c.turns, turns...)
}

// Turns returns a copy of the turns.
func (c *Conversation) Turns() []Turn {
	return append([]Turn(nil), c.turns...)
}

// Len returns the number of turns.
func (c *Conversation) Len() int { return len(c.turns) }

// Last returns the most recent turn, if any.
func (c *Conversation) Last() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// Validate checks that the conversation is a sequence of complete or
// in-progress exchanges:
//
//	User → (Assistant(tools) → ToolResult×N)* → Assistant(text)
//
// where the N results answer the preceding requests in order.
func (c *Conversation) Validate() error {
	i := 0
	n := len(c.turns)
	for i < n {
		if c.turns[i].Kind != KindUser {
			return fmt.Errorf("turn %d: expected user turn, got %s", i, c.turns[i].Kind)
		}
		i++
		for {
			if i == n {
				return nil
			}
			t := c.turns[i]
			if t.Kind != KindAssistant {
				return fmt.Errorf("turn %d: expected assistant turn, got %s", i, t.Kind)
			}
			hasText := strings.TrimSpace(t.Text) != ""
			hasTools := len(t.ToolRequests) > 0
			if hasText == hasTools {
				return fmt.Errorf("turn %d: assistant turn must carry exactly one of text or tool requests", i)
			}
			i++
			if hasText {
				break
			}
			for j, req := range t.ToolRequests {
				if i == n {
					if j == 0 {
						return errors.New("conversation ends with unanswered tool requests")
					}
					return fmt.Errorf("conversation ends after %d of %d tool results", j, len(t.ToolRequests))
				}
				r := c.turns[i]
				if r.Kind != KindToolResult {
					return fmt.Errorf("turn %d: expected tool result for %q, got %s", i, req.ID, r.Kind)
				}
				if r.RequestID != req.ID {
					return fmt.Errorf("turn %d: result for %q out of order, expected %q", i, r.RequestID, req.ID)
				}
				i++
			}
		}
	}
	return nil
}
