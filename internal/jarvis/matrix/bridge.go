package matrix

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/jarvis/common/trace"
	"github.com/bdobrica/jarvis/internal/jarvis/agent"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

// Sessions creates continuous conversations. *agent.Loop satisfies it.
type Sessions interface {
	NewSession() *agent.Session
}

// Replier posts a reply into a room. *Client satisfies it.
type Replier interface {
	SendReply(ctx context.Context, roomID, replyToEventID, text string) error
}

// TurnLog records turns for auditing. *store.Store satisfies it.
type TurnLog interface {
	LogTurn(traceID, sessionID, channel, message string) (int64, error)
	FinishTurn(id int64, outcome string, rounds, toolCalls int, result string, d time.Duration) error
}

// Message is the part of a Matrix event the bridge acts on.
type Message struct {
	RoomID  string
	Sender  string
	EventID string
	Body    string
}

// Bridge answers room messages through one continuous session per room.
// Turns within a room are serialised by the session; rooms run
// independently.
type Bridge struct {
	sessions Sessions
	replier  Replier
	turns    TurnLog
	allowed  map[string]bool
	since    time.Time

	mu    sync.Mutex
	rooms map[string]*agent.Session
	wg    sync.WaitGroup
}

// NewBridge returns a Bridge. An empty allowedSenders accepts every sender;
// turns may be nil.
func NewBridge(sessions Sessions, replier Replier, turns TurnLog, allowedSenders []string) *Bridge {
	b := &Bridge{
		sessions: sessions,
		replier:  replier,
		turns:    turns,
		since:    time.Now(),
		rooms:    make(map[string]*agent.Session),
	}
	if len(allowedSenders) > 0 {
		b.allowed = make(map[string]bool, len(allowedSenders))
		for _, s := range allowedSenders {
			b.allowed[s] = true
		}
	}
	return b
}

// HandleEvent is a MessageHandler. Text messages from allowed senders that
// arrived after the bridge was created are answered asynchronously so the
// sync loop is never blocked by a turn.
func (b *Bridge) HandleEvent(ctx context.Context, evt *event.Event) {
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return
	}
	if evt.Timestamp > 0 && time.UnixMilli(evt.Timestamp).Before(b.since) {
		return
	}
	msg := Message{
		RoomID:  evt.RoomID.String(),
		Sender:  evt.Sender.String(),
		EventID: evt.ID.String(),
		Body:    content.Body,
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.Handle(ctx, msg)
	}()
}

// Handle answers one message synchronously. It reports whether a reply was
// attempted.
func (b *Bridge) Handle(ctx context.Context, msg Message) bool {
	text := strings.TrimSpace(msg.Body)
	if text == "" {
		return false
	}
	if b.allowed != nil && !b.allowed[msg.Sender] {
		slog.Debug("message from disallowed sender; ignoring", "sender", msg.Sender, "room", msg.RoomID)
		return false
	}

	sess := b.session(msg.RoomID)
	ctx, traceID := trace.Ensure(trace.WithSessionID(ctx, sess.ID()))
	log := observability.WithTrace(ctx).With("room", msg.RoomID)

	var turnID int64
	logged := false
	if b.turns != nil {
		id, err := b.turns.LogTurn(traceID, sess.ID(), store.ChannelMatrix, text)
		if err != nil {
			log.Warn("could not log turn", "err", err)
		} else {
			turnID, logged = id, true
		}
	}

	start := time.Now()
	reply := sess.Handle(ctx, text)

	if logged {
		if err := b.turns.FinishTurn(turnID, reply.Outcome(), reply.Rounds, reply.ToolCalls, reply.Text, time.Since(start)); err != nil {
			log.Warn("could not finish turn", "err", err)
		}
	}
	if err := b.replier.SendReply(ctx, msg.RoomID, msg.EventID, reply.Text); err != nil {
		log.Error("could not send reply", "err", err)
	}
	return true
}

// Wait blocks until every in-flight HandleEvent turn has finished.
func (b *Bridge) Wait() { b.wg.Wait() }

// Rooms returns how many rooms have an open session.
func (b *Bridge) Rooms() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms)
}

func (b *Bridge) session(roomID string) *agent.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.rooms[roomID]
	if !ok {
		s = b.sessions.NewSession()
		b.rooms[roomID] = s
	}
	return s
}
