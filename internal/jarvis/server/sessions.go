package server

import (
	"context"
	"sync"
	"time"

	"github.com/bdobrica/jarvis/internal/jarvis/agent"
)

type sessionEntry struct {
	session *agent.Session
	last    time.Time
	// busy counts requests currently running a turn; a busy entry never
	// expires.
	busy int
}

// sessionStore holds continuous chat sessions keyed by session ID. Activity
// is tracked here: Session.LastActive blocks while a turn is running.
type sessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*sessionEntry
	now     func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{ttl: ttl, entries: make(map[string]*sessionEntry), now: time.Now}
}

// add stores sess and acquires it for the caller's first turn.
func (s *sessionStore) add(sess *agent.Session) *agent.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.ID()] = &sessionEntry{session: sess, last: s.now(), busy: 1}
	return sess
}

// acquire returns a live session and marks it busy until release. Expired
// sessions are dropped.
func (s *sessionStore) acquire(id string) (*agent.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.expired(e, now) {
		delete(s.entries, id)
		return nil, false
	}
	e.last = now
	e.busy++
	return e.session, true
}

// release ends a turn started by add or acquire and restarts the idle clock.
func (s *sessionStore) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		if e.busy > 0 {
			e.busy--
		}
		e.last = s.now()
	}
}

func (s *sessionStore) expired(e *sessionEntry, now time.Time) bool {
	return s.ttl > 0 && e.busy == 0 && now.Sub(e.last) > s.ttl
}

// sweep removes expired sessions and returns how many were removed.
func (s *sessionStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *sessionStore) sweepEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
