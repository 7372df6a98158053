package records

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"medfayda/internal/sentinel"
	id "medfayda/pkg/domain"
)

// InMemoryStore keeps records in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.RecordID]*Record)}
}

// ListByPatient returns the patient's records, oldest first.
func (s *InMemoryStore) ListByPatient(_ context.Context, patientID id.PrincipalID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0)
	for _, r := range s.records {
		if r.PatientID == patientID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Get returns a record only when it belongs to patientID.
func (s *InMemoryStore) Get(_ context.Context, patientID id.PrincipalID, recordID id.RecordID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok || r.PatientID != patientID {
		return nil, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryStore) Create(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[r.ID]; exists {
		return fmt.Errorf("record %s: %w", r.ID, sentinel.ErrConflict)
	}
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[r.ID]
	if !ok || existing.PatientID != r.PatientID {
		return fmt.Errorf("record %s: %w", r.ID, sentinel.ErrNotFound)
	}
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, patientID id.PrincipalID, recordID id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[recordID]
	if !ok || existing.PatientID != patientID {
		return fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	delete(s.records, recordID)
	return nil
}
