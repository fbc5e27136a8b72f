package matrix_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/jarvis/internal/jarvis/agent"
	"github.com/bdobrica/jarvis/internal/jarvis/conversation"
	"github.com/bdobrica/jarvis/internal/jarvis/executor"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/llm"
	"github.com/bdobrica/jarvis/internal/jarvis/matrix"
)

type countingDecider struct{}

func (countingDecider) Decide(_ context.Context, conv *conversation.Conversation, _ []llm.ToolDefinition) gateway.Decision {
	n := 0
	for _, t := range conv.Turns() {
		if t.Kind == conversation.KindUser {
			n++
		}
	}
	last, _ := conv.Last()
	return gateway.Text(fmt.Sprintf("%d:%s", n, last.Text))
}

type noRunner struct{}

func (noRunner) ExecuteAll(context.Context, []conversation.ToolRequest, *executor.Budget) []string {
	return nil
}

type sentReply struct {
	room, replyTo, text string
}

type recordingReplier struct {
	mu   sync.Mutex
	sent []sentReply
}

func (r *recordingReplier) SendReply(_ context.Context, roomID, replyTo, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentReply{roomID, replyTo, text})
	return nil
}

type memTurns struct {
	mu       sync.Mutex
	channels []string
	outcomes []string
}

func (m *memTurns) LogTurn(_, _, channel, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channel)
	m.outcomes = append(m.outcomes, "")
	return int64(len(m.channels)), nil
}

func (m *memTurns) FinishTurn(id int64, outcome string, _, _ int, _ string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[id-1] = outcome
	return nil
}

func newBridge(allowed ...string) (*matrix.Bridge, *recordingReplier, *memTurns) {
	loop := agent.New(countingDecider{}, noRunner{}, nil, agent.Options{})
	rep := &recordingReplier{}
	turns := &memTurns{}
	return matrix.NewBridge(loop, rep, turns, allowed), rep, turns
}

func TestBridge_SessionPerRoom(t *testing.T) {
	b, rep, turns := newBridge()
	ctx := context.Background()

	b.Handle(ctx, matrix.Message{RoomID: "!a:x", Sender: "@u:x", EventID: "$1", Body: "hello"})
	b.Handle(ctx, matrix.Message{RoomID: "!a:x", Sender: "@u:x", EventID: "$2", Body: "again"})
	b.Handle(ctx, matrix.Message{RoomID: "!b:x", Sender: "@u:x", EventID: "$3", Body: "other"})

	want := []sentReply{
		{"!a:x", "$1", "1:hello"},
		{"!a:x", "$2", "2:again"},
		{"!b:x", "$3", "1:other"},
	}
	if len(rep.sent) != len(want) {
		t.Fatalf("expected %d replies, got %v", len(want), rep.sent)
	}
	for i, w := range want {
		if rep.sent[i] != w {
			t.Errorf("reply %d = %+v, want %+v", i, rep.sent[i], w)
		}
	}
	if b.Rooms() != 2 {
		t.Errorf("expected 2 rooms, got %d", b.Rooms())
	}
	if len(turns.channels) != 3 || turns.channels[0] != "matrix" || turns.outcomes[2] != "text" {
		t.Errorf("unexpected turn log: %v %v", turns.channels, turns.outcomes)
	}
}

func TestBridge_AllowedSenders(t *testing.T) {
	b, rep, _ := newBridge("@owner:x")
	ctx := context.Background()

	if b.Handle(ctx, matrix.Message{RoomID: "!a:x", Sender: "@stranger:x", Body: "reboot"}) {
		t.Error("stranger should be ignored")
	}
	if !b.Handle(ctx, matrix.Message{RoomID: "!a:x", Sender: "@owner:x", Body: "hi"}) {
		t.Error("owner should be answered")
	}
	if len(rep.sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(rep.sent))
	}
}

func TestBridge_IgnoresBlankMessages(t *testing.T) {
	b, rep, _ := newBridge()
	if b.Handle(context.Background(), matrix.Message{RoomID: "!a:x", Body: "   "}) {
		t.Error("blank message should be ignored")
	}
	if len(rep.sent) != 0 || b.Rooms() != 0 {
		t.Error("blank message should not open a session")
	}
}

func textEvent(ts time.Time, msgType event.MessageType, body string) *event.Event {
	return &event.Event{
		ID:        id.EventID("$evt"),
		RoomID:    id.RoomID("!room:x"),
		Sender:    id.UserID("@u:x"),
		Timestamp: ts.UnixMilli(),
		Type:      event.EventMessage,
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: msgType,
			Body:    body,
		}},
	}
}

func TestBridge_HandleEvent(t *testing.T) {
	b, rep, _ := newBridge()
	ctx := context.Background()

	b.HandleEvent(ctx, textEvent(time.Now().Add(-time.Hour), event.MsgText, "backlog"))
	b.HandleEvent(ctx, textEvent(time.Now().Add(time.Second), event.MsgNotice, "a notice"))
	b.HandleEvent(ctx, textEvent(time.Now().Add(time.Second), event.MsgText, "live"))
	b.Wait()

	if len(rep.sent) != 1 {
		t.Fatalf("expected only the live text message to be answered, got %v", rep.sent)
	}
	if rep.sent[0].text != "1:live" || rep.sent[0].replyTo != "$evt" {
		t.Errorf("unexpected reply %+v", rep.sent[0])
	}
}
