package otp

import (
	"context"
	"sync"
	"time"

	"medfayda/internal/sentinel"
	keyedsync "medfayda/pkg/platform/sync"
)

// InMemoryStore holds verification sessions for a single instance.
// Verification of one session is serialized by a keyed lock so the
// bcrypt comparison never blocks other sessions.
type InMemoryStore struct {
	mu          sync.RWMutex
	locks       *keyedsync.ShardedMutex
	challenges  map[string]*Challenge
	maxAttempts int
}

func NewInMemoryStore(maxAttempts int) *InMemoryStore {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &InMemoryStore{
		locks:       keyedsync.NewShardedMutex(),
		challenges:  make(map[string]*Challenge),
		maxAttempts: maxAttempts,
	}
}

func (s *InMemoryStore) Create(_ context.Context, c *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.challenges[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.challenges[c.ID] = c
	return nil
}

// Verify checks code against the session id. Once maxAttempts wrong codes have
// been submitted the session is invalidated and every later call, including one
// with the correct code, fails with sentinel.ErrExhausted.
func (s *InMemoryStore) Verify(_ context.Context, id, code string, now time.Time) (*Challenge, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	s.mu.RLock()
	c, ok := s.challenges[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if c.Consumed {
		return nil, sentinel.ErrAlreadyUsed
	}
	if c.Expired(now) {
		s.remove(id)
		return nil, sentinel.ErrExpired
	}
	if c.Attempts >= s.maxAttempts {
		s.remove(id)
		return nil, sentinel.ErrExhausted
	}
	if !matches(c.CodeHash, code) {
		c.Attempts++
		return nil, ErrCodeMismatch
	}

	c.Consumed = true
	s.remove(id)
	out := *c
	return &out, nil
}

// DeleteExpired drops sessions whose expiry has passed.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, c := range s.challenges {
		if c.Expired(now) {
			delete(s.challenges, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) remove(id string) {
	s.mu.Lock()
	delete(s.challenges, id)
	s.mu.Unlock()
}
