package store

import (
	"fmt"
	"strings"
	"time"
)

// Notification is one logged important notification.
type Notification struct {
	Body      string
	CreatedAt time.Time
}

// AddNotifications appends bodies not already logged and returns how many
// were new.
func (s *Store) AddNotifications(bodies []string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin notifications tx: %w", err)
	}
	added := 0
	for _, b := range bodies {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		res, err := tx.Exec("INSERT INTO notifications (body) VALUES (?) ON CONFLICT(body) DO NOTHING", b)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("insert notification: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit notifications tx: %w", err)
	}
	return added, nil
}

// RecentNotifications returns up to limit notifications, newest first.
func (s *Store) RecentNotifications(limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query("SELECT body, created_at FROM notifications ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
