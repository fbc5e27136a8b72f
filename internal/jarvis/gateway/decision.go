package gateway

import (
	"fmt"

	"github.com/bdobrica/jarvis/internal/jarvis/conversation"
)

// Fixed replies used when the backend gives nothing usable.
const (
	ApologyEmpty   = "I'm sorry, sir, I received an empty response from my core intelligence."
	ApologyFailure = "I've run into an unexpected issue with my connection to the new AI model, sir."
)

// Kind is the variant of a Decision.
type Kind int

const (
	KindText Kind = iota
	KindToolRequests
	KindDegraded
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindToolRequests:
		return "tool_requests"
	case KindDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Decision is what the model chose for the next step: reply with Text, run
// Requests, or (Degraded) a fixed apology because the backend failed. Only
// the fields of the active Kind are set.
type Decision struct {
	Kind     Kind
	Text     string
	Requests []conversation.ToolRequest
	// Cause is the backend error behind a Degraded decision, if any.
	Cause error
}

// Text returns a text decision.
func Text(text string) Decision {
	return Decision{Kind: KindText, Text: text}
}

// ToolRequests returns a tool-request decision.
func ToolRequests(reqs []conversation.ToolRequest) Decision {
	return Decision{Kind: KindToolRequests, Requests: reqs}
}

// Degraded returns a degraded decision carrying a fixed apology.
func Degraded(apology string, cause error) Decision {
	return Decision{Kind: KindDegraded, Text: apology, Cause: cause}
}

// Turn renders the decision as the assistant turn to append. Degraded renders
// exactly like Text.
func (d Decision) Turn() conversation.Turn {
	if d.Kind == KindToolRequests {
		return conversation.AssistantTools(d.Requests)
	}
	return conversation.AssistantText(d.Text)
}
