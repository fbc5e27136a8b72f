package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/bdobrica/jarvis/common/trace"
	"github.com/bdobrica/jarvis/internal/jarvis/executor"
)

// Channels a turn can arrive on.
const (
	ChannelVoice  = "voice"
	ChannelHTTP   = "http"
	ChannelMatrix = "matrix"
	ChannelCLI    = "cli"
)

// TurnRecord is one row of turn_log.
type TurnRecord struct {
	ID         int64
	TraceID    string
	SessionID  string
	Channel    string
	Message    string
	Outcome    string
	Rounds     int
	ToolCalls  int
	Result     string
	DurationMS int64
	CreatedAt  time.Time
}

// LogTurn inserts a new row into turn_log and returns the inserted ID.
func (s *Store) LogTurn(traceID, sessionID, channel, message string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO turn_log (trace_id, session_id, channel, message)
		VALUES (?, ?, ?, ?)`,
		traceID, nullableString(sessionID), channel, message,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishTurn updates an existing turn_log row with the outcome.
func (s *Store) FinishTurn(id int64, outcome string, rounds, toolCalls int, result string, d time.Duration) error {
	_, err := s.db.Exec(`
		UPDATE turn_log
		SET outcome = ?, rounds = ?, tool_calls = ?, result = ?, duration_ms = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		outcome, rounds, toolCalls, result, d.Milliseconds(), id,
	)
	return err
}

// RecentTurns returns the latest finished and unfinished turns, newest first.
func (s *Store) RecentTurns(limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, trace_id, COALESCE(session_id, ''), channel, message, COALESCE(outcome, ''),
		       rounds, tool_calls, COALESCE(result, ''), COALESCE(duration_ms, 0), created_at
		FROM turn_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var r TurnRecord
		if err := rows.Scan(&r.ID, &r.TraceID, &r.SessionID, &r.Channel, &r.Message, &r.Outcome,
			&r.Rounds, &r.ToolCalls, &r.Result, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ObserveToolCall records a finished tool call. It implements
// executor.Observer; failures are logged, never returned.
func (s *Store) ObserveToolCall(ctx context.Context, rec executor.Record) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (trace_id, session_id, request_id, skill, arguments, status, result, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableString(trace.FromContext(ctx)), nullableString(trace.SessionFromContext(ctx)),
		rec.RequestID, rec.Skill, rec.Arguments, string(rec.Status), rec.Result, rec.Duration.Milliseconds(),
	)
	if err != nil {
		slog.Warn("failed to record tool call", "skill", rec.Skill, "err", err)
	}
}

// ToolCallRecord is one row of tool_calls.
type ToolCallRecord struct {
	TraceID    string
	RequestID  string
	Skill      string
	Arguments  string
	Status     string
	Result     string
	DurationMS int64
}

// ToolCalls returns the calls recorded under traceID in insertion order.
func (s *Store) ToolCalls(traceID string) ([]ToolCallRecord, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(trace_id, ''), request_id, skill, arguments, status, result, duration_ms
		FROM tool_calls WHERE trace_id = ? ORDER BY id`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolCallRecord
	for rows.Next() {
		var r ToolCallRecord
		if err := rows.Scan(&r.TraceID, &r.RequestID, &r.Skill, &r.Arguments, &r.Status, &r.Result, &r.DurationMS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
