package principal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medfayda/internal/auth/models"
	"medfayda/internal/sentinel"
	id "medfayda/pkg/domain"
)

// InMemoryStore keeps principals in process memory, indexed by ID and
// external subject. All writes hold one lock so upserts are atomic.
type InMemoryStore struct {
	mu        sync.RWMutex
	byID      map[id.PrincipalID]*models.Principal
	bySubject map[string]id.PrincipalID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:      make(map[id.PrincipalID]*models.Principal),
		bySubject: make(map[string]id.PrincipalID),
	}
}

// UpsertOnLogin creates candidate when its external subject is unknown;
// otherwise only the existing principal's last-login time changes.
func (s *InMemoryStore) UpsertOnLogin(_ context.Context, candidate *models.Principal, now time.Time) (*models.Principal, bool, error) {
	if candidate == nil || candidate.ExternalSubject == "" {
		return nil, false, fmt.Errorf("principal with external subject is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if pid, ok := s.bySubject[candidate.ExternalSubject]; ok {
		existing := s.byID[pid]
		existing.RecordLogin(now)
		out := *existing
		return &out, false, nil
	}

	created := *candidate
	created.CreatedAt = now
	created.RecordLogin(now)
	s.byID[created.ID] = &created
	s.bySubject[created.ExternalSubject] = created.ID
	out := created
	return &out, true, nil
}

// TouchLogin stamps a login on an existing principal.
func (s *InMemoryStore) TouchLogin(_ context.Context, principalID id.PrincipalID, now time.Time) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[principalID]
	if !ok {
		return nil, fmt.Errorf("principal %s: %w", principalID, sentinel.ErrNotFound)
	}
	p.RecordLogin(now)
	out := *p
	return &out, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, principalID id.PrincipalID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[principalID]
	if !ok {
		return nil, fmt.Errorf("principal %s: %w", principalID, sentinel.ErrNotFound)
	}
	out := *p
	return &out, nil
}

func (s *InMemoryStore) FindByPhone(_ context.Context, phone string) (*models.Principal, error) {
	return s.findFirst(func(p *models.Principal) bool { return p.Phone == phone })
}

func (s *InMemoryStore) FindByFIN(_ context.Context, fin string) (*models.Principal, error) {
	return s.findFirst(func(p *models.Principal) bool { return p.FIN == fin })
}

// Save replaces profile fields of an existing principal. Login timestamps are
// owned by TouchLogin and UpsertOnLogin and are kept.
func (s *InMemoryStore) Save(_ context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[p.ID]
	if !ok {
		return fmt.Errorf("principal %s: %w", p.ID, sentinel.ErrNotFound)
	}
	stored := *p
	stored.CreatedAt = current.CreatedAt
	stored.LastLoginAt = current.LastLoginAt
	s.byID[p.ID] = &stored
	s.bySubject[p.ExternalSubject] = p.ID
	return nil
}

func (s *InMemoryStore) findFirst(match func(*models.Principal) bool) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Principal
	for _, p := range s.byID {
		if !match(p) {
			continue
		}
		// Oldest wins so lookups are deterministic.
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			found = p
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	out := *found
	return &out, nil
}
