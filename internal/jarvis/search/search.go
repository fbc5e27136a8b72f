// Package search answers web queries for the search skills.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Result strings shown to the model.
const (
	NoAnswer          = "Sorry sir, I couldn't find a direct answer for that query."
	ConnectionFailure = "Sorry sir, I had trouble connecting to the search API."
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("search: empty query")

// Searcher returns a short textual answer for query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Func adapts a function to Searcher.
type Func func(ctx context.Context, query string) (string, error)

// Search implements Searcher.
func (f Func) Search(ctx context.Context, query string) (string, error) { return f(ctx, query) }

// Fallback tries each searcher in order and returns the first answer that is
// not an error.
type Fallback []Searcher

// Search implements Searcher.
func (f Fallback) Search(ctx context.Context, query string) (string, error) {
	var errs []error
	for _, s := range f {
		answer, err := s.Search(ctx, query)
		if err == nil {
			return answer, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("search backend failed, trying next", "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return NoAnswer, nil
	}
	return "", errors.Join(errs...)
}

// Cached memoises answers by normalised query.
type Cached struct {
	next  Searcher
	cache *expirable.LRU[string, string]
}

// NewCached wraps next with an LRU cache of size entries, each kept for ttl.
func NewCached(next Searcher, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 128
	}
	return &Cached{next: next, cache: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Search implements Searcher. Errors are never cached.
func (c *Cached) Search(ctx context.Context, query string) (string, error) {
	key := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if key == "" {
		return "", ErrEmptyQuery
	}
	if answer, ok := c.cache.Get(key); ok {
		slog.Debug("search cache hit", "query", key)
		return answer, nil
	}
	answer, err := c.next.Search(ctx, query)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, answer)
	return answer, nil
}

// Len returns the number of cached answers.
func (c *Cached) Len() int { return c.cache.Len() }
