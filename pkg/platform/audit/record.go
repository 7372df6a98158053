// Package audit defines the append-only access record written for every
// guarded request, its redaction rules and its tamper-evident hash chain.
package audit

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	id "medfayda/pkg/domain"
)

const (
	// AnonymousActor is recorded when authentication never completed.
	AnonymousActor = "anonymous"
	// UnknownRole pairs with AnonymousActor.
	UnknownRole = "unknown"
)

// Record is one audited request outcome. Records are never mutated after
// they are sealed into the chain.
type Record struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	ActorID          string    `json:"actor_id"`
	ActorRole        string    `json:"actor_role"`
	SubjectPatientID string    `json:"subject_patient_id,omitempty"`
	Action           id.Action `json:"action"`
	ResourceType     string    `json:"resource_type,omitempty"`
	ResourceID       string    `json:"resource_id,omitempty"`
	FacilityID       string    `json:"facility_id,omitempty"`
	ClientIP         string    `json:"client_ip,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	RequestID        string    `json:"request_id,omitempty"`
	Detail           Detail    `json:"detail"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	PrevHash         string    `json:"prev_hash"`
	Hash             string    `json:"hash"`
}

// Detail is the structured request summary. Body and query are redacted
// before they reach a Record.
type Detail struct {
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Status      int            `json:"status"`
	LatencyMS   int64          `json:"latency_ms"`
	RequestBody any            `json:"request_body,omitempty"`
	Query       map[string]any `json:"query,omitempty"`
	Device      string         `json:"device,omitempty"`
}

// NewID returns a time-ordered record id.
func NewID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// SuccessFromStatus is the success rule for HTTP outcomes.
func SuccessFromStatus(status int) bool {
	return status < 400
}

// Query filters stored records. Zero fields match everything.
type Query struct {
	ActorID          string
	SubjectPatientID string
	Action           id.Action
	Since            time.Time
	Until            time.Time
	Limit            int
}

// Matches reports whether r satisfies q, ignoring Limit.
func (q Query) Matches(r Record) bool {
	switch {
	case q.ActorID != "" && r.ActorID != q.ActorID:
		return false
	case q.SubjectPatientID != "" && r.SubjectPatientID != q.SubjectPatientID:
		return false
	case q.Action != "" && r.Action != q.Action:
		return false
	case !q.Since.IsZero() && r.Timestamp.Before(q.Since):
		return false
	case !q.Until.IsZero() && !r.Timestamp.Before(q.Until):
		return false
	}
	return true
}

// Store persists sealed records in chain order.
type Store interface {
	Append(ctx context.Context, r Record) error
	// LastHash returns the hash of the newest record, or "" for an empty store.
	LastHash(ctx context.Context) (string, error)
	// List returns matching records oldest first.
	List(ctx context.Context, q Query) ([]Record, error)
}

// Sink receives sealed records after they are stored, e.g. a message stream.
type Sink interface {
	Publish(ctx context.Context, r Record) error
}
