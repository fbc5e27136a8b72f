package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/jarvis/common/trace"
	"github.com/bdobrica/jarvis/internal/jarvis/conversation"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
)

// Listener produces user utterances. Listen blocks until an utterance is
// available; an empty string means nothing was heard. io.EOF ends a session.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Speaker delivers the final reply to the user.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// listenRetryDelay separates attempts after a failing Listen.
var listenRetryDelay = time.Second

// Session is a continuous conversation: every turn sees all previous turns.
// Turns are serialised, so a session never runs two turns at once.
type Session struct {
	mu     sync.Mutex
	loop   *Loop
	conv   *conversation.Conversation
	last   time.Time
	onTurn TurnFunc
}

// TurnFunc observes a turn completed by Session.Run.
type TurnFunc func(ctx context.Context, text string, reply Reply, elapsed time.Duration)

// OnTurn sets a callback invoked after every turn Run completes. It must be
// set before Run is called.
func (s *Session) OnTurn(fn TurnFunc) *Session {
	s.onTurn = fn
	return s
}

// NewSession starts an empty continuous conversation.
func (l *Loop) NewSession() *Session {
	return &Session{loop: l, conv: conversation.New(), last: time.Now()}
}

// ID returns the session's conversation ID.
func (s *Session) ID() string { return s.conv.ID() }

// Handle runs one user turn on the session's conversation.
func (s *Session) Handle(ctx context.Context, text string) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = time.Now()
	return s.loop.Respond(trace.WithSessionID(ctx, s.conv.ID()), s.conv, text)
}

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []conversation.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Turns()
}

// LastActive returns when the session last started a turn.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run listens, responds and speaks until ctx is cancelled or the listener
// returns io.EOF. Listener failures are logged and retried; empty utterances
// are ignored.
func (s *Session) Run(ctx context.Context, listener Listener, speaker Speaker) error {
	ctx = trace.WithSessionID(ctx, s.conv.ID())
	log := observability.WithTrace(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.loop.enter(ctx, StateAwaitingInput)
		text, err := listener.Listen(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("listen failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(listenRetryDelay):
			}
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		start := time.Now()
		reply := s.Handle(ctx, text)
		if s.onTurn != nil {
			s.onTurn(ctx, text, reply, time.Since(start))
		}
		if err := speaker.Speak(ctx, reply.Text); err != nil {
			log.Warn("speak failed", "err", err)
		}
	}
}
