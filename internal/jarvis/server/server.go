// Package server implements the Jarvis HTTP API.
//
// The API mirrors a voice round trip: a client records a command, uploads
// it, and receives the assistant's final reply once every requested skill
// has run on the device. Text clients can hold a continuous conversation
// through /api/chat sessions.
//
// Authentication: set Handlers.Token to require
// "Authorization: Bearer <token>" on every request. When Token is empty
// authentication is disabled (dev/test mode).
//
// Endpoints:
//
//	GET  /health      → HealthResponse
//	GET  /status      → StatusResponse
//	GET  /metrics     → Prometheus exposition
//	POST /api/jarvis  → multipart "audio" file → JarvisResponse
//	POST /api/chat    → ChatRequest → ChatResponse
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bdobrica/jarvis/common/trace"
	"github.com/bdobrica/jarvis/internal/jarvis/agent"
	"github.com/bdobrica/jarvis/internal/jarvis/speech"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

// NotHeardReply answers an upload whose transcript is empty.
const NotHeardReply = "I'm sorry, I didn't catch that."

// DefaultMaxUploadBytes caps an audio upload when Handlers.MaxUploadBytes is
// zero.
const DefaultMaxUploadBytes = 25 << 20

// maxChatBodyBytes caps a /api/chat request body.
const maxChatBodyBytes = 64 << 10

// Agent answers user text. *agent.Loop satisfies it.
type Agent interface {
	RespondOnce(ctx context.Context, text string) agent.Reply
	NewSession() *agent.Session
}

// TurnLog records turns for auditing. *store.Store satisfies it.
type TurnLog interface {
	LogTurn(traceID, sessionID, channel, message string) (int64, error)
	FinishTurn(id int64, outcome string, rounds, toolCalls int, result string, d time.Duration) error
}

// Handlers wires the server to the rest of the assistant.
type Handlers struct {
	Agent       Agent
	Transcriber speech.Transcriber
	// Turns is optional; nil disables the audit log.
	Turns TurnLog
	// Gatherer backs /metrics; nil means the default Prometheus registry.
	Gatherer  prometheus.Gatherer
	Version   string
	StartedAt time.Time
	Token     string
	// Skills lists the advertised skill names for /status.
	Skills         func() []string
	MaxUploadBytes int64
	// SessionTTL expires idle chat sessions; zero keeps them forever.
	SessionTTL time.Duration
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime_seconds"`
	StartedAt time.Time `json:"started_at"`
	Sessions  int       `json:"sessions"`
	Skills    []string  `json:"skills"`
}

// JarvisResponse is returned by POST /api/jarvis. Commands is always empty:
// skills run on the server side before the reply is sent.
type JarvisResponse struct {
	Response string   `json:"response"`
	Commands []string `json:"commands"`
}

// ChatRequest is the body of POST /api/chat. An empty SessionID with
// Continue unset is answered statelessly; Continue starts a new session.
type ChatRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	Continue  bool   `json:"continue,omitempty"`
}

// ChatResponse is returned by POST /api/chat.
type ChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
	TraceID   string `json:"trace_id"`
	Rounds    int    `json:"rounds"`
	ToolCalls int    `json:"tool_calls"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// Server is the HTTP API server.
type Server struct {
	addr     string
	handlers Handlers
	sessions *sessionStore
	server   *http.Server
}

// New creates a Server listening on addr.
func New(addr string, h Handlers) *Server {
	if h.MaxUploadBytes <= 0 {
		h.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if h.Gatherer == nil {
		h.Gatherer = prometheus.DefaultGatherer
	}
	if h.StartedAt.IsZero() {
		h.StartedAt = time.Now()
	}
	s := &Server{
		addr:     addr,
		handlers: h,
		sessions: newSessionStore(h.SessionTTL),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/jarvis", s.handleJarvis)
	mux.HandleFunc("/api/chat", s.handleChat)

	// Turns can run several model rounds and device commands, so the write
	// timeout is generous.
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.authMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	return s
}

// authMiddleware rejects requests that do not carry the correct bearer token.
// When Handlers.Token is empty, all requests are allowed (dev/test mode).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.handlers.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if auth[len("Bearer "):] != s.handlers.Token {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening. It returns once the listener is bound so callers
// can immediately start sending requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server listen %s: %w", s.addr, err)
	}
	slog.Info("HTTP server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "err", err)
		}
	}()
	if s.handlers.SessionTTL > 0 {
		go s.sessions.sweepEvery(ctx, s.handlers.SessionTTL/2)
	}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var names []string
	if s.handlers.Skills != nil {
		names = s.handlers.Skills()
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Version:   s.handlers.Version,
		Uptime:    time.Since(s.handlers.StartedAt).Seconds(),
		StartedAt: s.handlers.StartedAt,
		Sessions:  s.sessions.len(),
		Skills:    names,
	})
}

func (s *Server) handleJarvis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.handlers.Transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription not available")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.handlers.MaxUploadBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing audio file: "+err.Error())
		return
	}
	defer file.Close()

	ctx, traceID := trace.Ensure(r.Context())
	log := slog.With("trace_id", traceID)

	text, err := s.handlers.Transcriber.Transcribe(ctx, header.Filename, file)
	if err != nil {
		log.Warn("transcription failed", "err", err)
		text = ""
	}
	text = strings.TrimSpace(text)
	if text == "" {
		writeJSON(w, http.StatusOK, JarvisResponse{Response: NotHeardReply, Commands: []string{}})
		return
	}
	log.Info("transcribed command", "text_len", len(text))

	reply := s.respond(ctx, traceID, "", text, func(ctx context.Context) agent.Reply {
		return s.handlers.Agent.RespondOnce(ctx, text)
	})
	writeJSON(w, http.StatusOK, JarvisResponse{Response: reply.Text, Commands: []string{}})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	var sess *agent.Session
	switch {
	case req.SessionID != "":
		var ok bool
		if sess, ok = s.sessions.acquire(req.SessionID); !ok {
			writeError(w, http.StatusNotFound, "unknown or expired session")
			return
		}
	case req.Continue:
		sess = s.sessions.add(s.handlers.Agent.NewSession())
	}

	ctx, traceID := trace.Ensure(r.Context())
	resp := ChatResponse{TraceID: traceID}
	var reply agent.Reply
	if sess != nil {
		resp.SessionID = sess.ID()
		defer s.sessions.release(sess.ID())
		reply = s.respond(ctx, traceID, sess.ID(), req.Text, func(ctx context.Context) agent.Reply {
			return sess.Handle(ctx, req.Text)
		})
	} else {
		reply = s.respond(ctx, traceID, "", req.Text, func(ctx context.Context) agent.Reply {
			return s.handlers.Agent.RespondOnce(ctx, req.Text)
		})
	}
	resp.Response = reply.Text
	resp.Rounds = reply.Rounds
	resp.ToolCalls = reply.ToolCalls
	resp.Degraded = reply.Degraded
	writeJSON(w, http.StatusOK, resp)
}

// respond runs one turn and records it in the audit log when one is
// configured. Audit failures are logged and never fail the request.
func (s *Server) respond(ctx context.Context, traceID, sessionID, text string, run func(context.Context) agent.Reply) agent.Reply {
	if s.handlers.Turns == nil {
		return run(ctx)
	}
	start := time.Now()
	id, err := s.handlers.Turns.LogTurn(traceID, sessionID, store.ChannelHTTP, text)
	if err != nil {
		slog.Warn("turn log insert failed", "trace_id", traceID, "err", err)
	}
	reply := run(ctx)
	if err == nil {
		if ferr := s.handlers.Turns.FinishTurn(id, reply.Outcome(), reply.Rounds, reply.ToolCalls, reply.Text, time.Since(start)); ferr != nil {
			slog.Warn("turn log update failed", "trace_id", traceID, "err", ferr)
		}
	}
	return reply
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// TestHandler exposes the server's HTTP handler for use in httptest.NewServer.
// This is only intended for tests.
func (s *Server) TestHandler() http.Handler {
	return s.server.Handler
}
