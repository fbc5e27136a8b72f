package notifications

import (
	"context"
	"log/slog"
	"time"
)

// Log stores important notifications, ignoring ones already stored.
// *store.Store satisfies it.
type Log interface {
	AddNotifications(bodies []string) (int, error)
}

// Result summarises one scan.
type Result struct {
	Raw       int
	Important []string
	Added     int
}

// Scanner fetches, filters and logs notifications.
type Scanner struct {
	source Source
	filter Filter
	log    Log
}

// NewScanner returns a Scanner.
func NewScanner(source Source, filter Filter, log Log) *Scanner {
	return &Scanner{source: source, filter: filter, log: log}
}

// Scan runs one fetch-filter-log pass.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	raw, err := s.source.Fetch(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Raw: len(raw)}
	if len(raw) == 0 {
		return res, nil
	}
	important, err := s.filter.Filter(ctx, raw)
	if err != nil {
		return res, err
	}
	res.Important = important
	if len(important) == 0 {
		slog.Info("no important notifications", "raw", res.Raw)
		return res, nil
	}
	res.Added, err = s.log.AddNotifications(important)
	if err != nil {
		return res, err
	}
	slog.Info("notification log updated", "raw", res.Raw, "important", len(important), "added", res.Added)
	return res, nil
}

// Run scans every interval until ctx is cancelled. Failed scans are logged.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Scan(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("notification scan failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
