package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ReplaceApps swaps the app catalog for apps (name → package) in one
// transaction. Names are stored as given.
func (s *Store) ReplaceApps(apps map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin apps tx: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM apps"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear apps: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO apps (name, package) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare apps insert: %w", err)
	}
	defer stmt.Close()
	for name, pkg := range apps {
		if _, err := stmt.Exec(name, pkg); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert app %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apps tx: %w", err)
	}
	return nil
}

// LookupApp returns the package for a normalised app name: an exact key
// match first, then the shortest key containing it. found is false when
// nothing matches.
func (s *Store) LookupApp(key string) (pkg string, found bool, err error) {
	if key == "" {
		return "", false, nil
	}
	err = s.db.QueryRow("SELECT package FROM apps WHERE name = ?", key).Scan(&pkg)
	if err == nil {
		return pkg, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, err
	}

	pattern := "%" + escapeLike(key) + "%"
	err = s.db.QueryRow(`
		SELECT package FROM apps WHERE name LIKE ? ESCAPE '\'
		ORDER BY length(name), name LIMIT 1`, pattern).Scan(&pkg)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return pkg, true, nil
}

// Apps returns the full catalog.
func (s *Store) Apps() (map[string]string, error) {
	rows, err := s.db.Query("SELECT name, package FROM apps")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, pkg string
		if err := rows.Scan(&name, &pkg); err != nil {
			return nil, err
		}
		out[name] = pkg
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
