package replay

import (
	"context"
	"sync"
	"time"

	"medfayda/internal/sentinel"
)

// InMemoryStore keeps attempts in a map guarded by one mutex.
// It is correct for a single service instance only.
type InMemoryStore struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{attempts: make(map[string]*Attempt)}
}

func (s *InMemoryStore) Put(_ context.Context, attempt *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *attempt
	s.attempts[attempt.State] = &stored
	return nil
}

// ConsumeOnce checks existence, expiry and prior use under the lock and marks
// the attempt consumed in the same critical section.
func (s *InMemoryStore) ConsumeOnce(_ context.Context, state string, now time.Time) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[state]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if attempt.Consumed {
		return nil, sentinel.ErrAlreadyUsed
	}
	if attempt.Expired(now) {
		delete(s.attempts, state)
		return nil, sentinel.ErrExpired
	}

	attempt.Consumed = true
	out := *attempt
	return &out, nil
}

// Sweep drops every attempt whose expiry has passed, consumed or not.
func (s *InMemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for state, attempt := range s.attempts {
		if attempt.Expired(now) {
			delete(s.attempts, state)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the number of tracked attempts.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}
