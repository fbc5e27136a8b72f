// Package observability wires logging, metrics and tracing for Jarvis.
//
// Logging wraps log/slog with trace and session ID propagation so every line
// emitted while handling a user turn can be correlated.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bdobrica/jarvis/common/redact"
	"github.com/bdobrica/jarvis/common/trace"
)

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a text or JSON logger writing to w.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup installs the global logger on stderr. Stdout is left free for the
// chat REPL.
func Setup(level, format string) {
	slog.SetDefault(NewLogger(os.Stderr, level, format))
}

// WithTrace returns a logger carrying the trace_id and session_id found in ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := trace.FromContext(ctx); id != "" {
		l = l.With("trace_id", id)
	}
	if id := trace.SessionFromContext(ctx); id != "" {
		l = l.With("session_id", id)
	}
	return l
}

// RedactSecrets strips known-sensitive values from a log message.
func RedactSecrets(msg string, sensitiveValues ...string) string {
	return redact.String(msg, sensitiveValues...)
}
