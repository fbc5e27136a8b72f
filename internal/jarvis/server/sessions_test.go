package server

import (
	"testing"
	"time"

	"github.com/bdobrica/jarvis/internal/jarvis/agent"
)

func TestSessionStore_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	st := newSessionStore(time.Minute)
	st.now = func() time.Time { return now }

	loop := agent.New(nil, nil, nil, agent.Options{})
	a := st.add(loop.NewSession())
	st.release(a.ID())
	b := st.add(loop.NewSession())
	st.release(b.ID())

	now = now.Add(40 * time.Second)
	if _, ok := st.acquire(a.ID()); !ok {
		t.Fatal("session a should still be live")
	}
	st.release(a.ID())

	now = now.Add(40 * time.Second)
	if _, ok := st.acquire(b.ID()); ok {
		t.Fatal("session b should have expired")
	}
	if _, ok := st.acquire(a.ID()); !ok {
		t.Fatal("session a was refreshed and should be live")
	}
	st.release(a.ID())

	now = now.Add(2 * time.Minute)
	if n := st.sweep(); n != 1 {
		t.Fatalf("sweep removed %d, want 1", n)
	}
	if st.len() != 0 {
		t.Fatalf("expected empty store, got %d", st.len())
	}
}

func TestSessionStore_BusySessionOutlivesTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	st := newSessionStore(time.Minute)
	st.now = func() time.Time { return now }
	loop := agent.New(nil, nil, nil, agent.Options{})

	// A new session's first turn runs longer than the TTL.
	fresh := st.add(loop.NewSession())
	now = now.Add(5 * time.Minute)
	if n := st.sweep(); n != 0 {
		t.Fatalf("sweep removed a session mid-turn")
	}
	st.release(fresh.ID())

	// So does a later turn on an existing session.
	if _, ok := st.acquire(fresh.ID()); !ok {
		t.Fatal("session should be live right after its turn finished")
	}
	now = now.Add(5 * time.Minute)
	if n := st.sweep(); n != 0 {
		t.Fatalf("sweep removed a session mid-turn")
	}
	st.release(fresh.ID())

	now = now.Add(30 * time.Second)
	if _, ok := st.acquire(fresh.ID()); !ok {
		t.Fatal("idle time should count from the end of the last turn")
	}
	st.release(fresh.ID())

	now = now.Add(2 * time.Minute)
	if n := st.sweep(); n != 1 {
		t.Fatalf("idle session should be swept, removed %d", n)
	}
}

func TestSessionStore_NoTTL(t *testing.T) {
	st := newSessionStore(0)
	start := time.Now()
	st.now = func() time.Time { return start }
	s := st.add(agent.New(nil, nil, nil, agent.Options{}).NewSession())
	st.release(s.ID())

	st.now = func() time.Time { return start.Add(24 * time.Hour) }
	if _, ok := st.acquire(s.ID()); !ok {
		t.Fatal("sessions never expire without a TTL")
	}
	st.release(s.ID())
	if st.sweep() != 0 {
		t.Fatal("sweep should remove nothing without a TTL")
	}
}
