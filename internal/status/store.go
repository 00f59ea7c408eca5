package status

import (
	"context"
	"sync"

	"github.com/dqworkbench/dqsync/pkg/types"
)

// Store is a thread-safe in-memory list of the most recent run summaries.
type Store struct {
	mu    sync.RWMutex
	runs  []types.RunSummary // oldest first
	limit int
}

// NewStore returns a Store retaining at most limit runs.
func NewStore(limit int) *Store {
	return &Store{limit: max(limit, 1)}
}

// Put appends s, replacing an earlier summary with the same ID.
func (s *Store) Put(sum types.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == sum.ID {
			s.runs[i] = sum
			return
		}
	}
	s.runs = append(s.runs, sum)
	if over := len(s.runs) - s.limit; over > 0 {
		s.runs = append(s.runs[:0:0], s.runs[over:]...)
	}
}

// Record implements the runner's summary sink.
func (s *Store) Record(_ context.Context, sum types.RunSummary) error {
	s.Put(sum)
	return nil
}

// Get returns the summary for id.
func (s *Store) Get(id string) (types.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.ID == id {
			return r, true
		}
	}
	return types.RunSummary{}, false
}

// List returns the retained summaries, newest first.
func (s *Store) List() []types.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.RunSummary, len(s.runs))
	for i, r := range s.runs {
		out[len(s.runs)-1-i] = r
	}
	return out
}

// Latest returns the most recent summary.
func (s *Store) Latest() (types.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return types.RunSummary{}, false
	}
	return s.runs[len(s.runs)-1], true
}

// Count returns the number of retained summaries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
