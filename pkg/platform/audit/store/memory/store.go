package memory

import (
	"context"
	"sync"

	audit "medfayda/pkg/platform/audit"
)

// Store keeps audit records in process memory in append order.
type Store struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewInMemoryStore() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, r audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *Store) LastHash(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return "", nil
	}
	return s.records[len(s.records)-1].Hash, nil
}

// List returns matching records oldest first. A positive Limit keeps the
// newest Limit matches.
func (s *Store) List(_ context.Context, q audit.Query) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Record, 0, len(s.records))
	for _, r := range s.records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}
