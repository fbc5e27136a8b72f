// Package memory persists the facts the user asked the assistant to remember.
//
// Facts live in a small JSON document, {"facts": [...]}, read whenever the
// system instruction is rebuilt and written only by the save-fact skill. The
// list is append-only and holds no exact duplicates.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrEmptyFact is returned when saving a blank fact.
var ErrEmptyFact = errors.New("memory: fact is empty")

type document struct {
	Facts []string `json:"facts"`
}

// FactStore is a file-backed fact list. It is safe for concurrent use within
// one process; writes replace the file atomically.
type FactStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewFactStore returns a store backed by path. The file and its directory are
// created on first save. If logger is nil the default logger is used.
func NewFactStore(path string, logger *slog.Logger) *FactStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FactStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *FactStore) Path() string { return s.path }

// Facts returns the saved facts in insertion order. A missing file yields an
// empty list; an unreadable or corrupt file yields an error.
func (s *FactStore) Facts() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return doc.Facts, nil
}

// Save appends fact unless an identical string is already stored. It reports
// whether the fact was added. A corrupt file is left untouched and reported
// as an error rather than overwritten.
func (s *FactStore) Save(fact string) (bool, error) {
	if strings.TrimSpace(fact) == "" {
		return false, ErrEmptyFact
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return false, err
	}
	for _, f := range doc.Facts {
		if f == fact {
			return false, nil
		}
	}
	doc.Facts = append(doc.Facts, fact)
	if err := s.write(doc); err != nil {
		return false, err
	}
	s.logger.Info("fact saved", "facts", len(doc.Facts))
	return true, nil
}

func (s *FactStore) read() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("memory: read %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("memory: decode %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FactStore) write(doc document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("memory: create directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("memory: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".facts-*.json")
	if err != nil {
		return fmt.Errorf("memory: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("memory: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("memory: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("memory: replace %s: %w", s.path, err)
	}
	return nil
}
