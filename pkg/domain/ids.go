// Package domain provides type-safe identifiers and the closed role set shared
// across the auth, access and audit packages.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "medfayda/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a RecordID where a PrincipalID is expected.
type (
	PrincipalID uuid.UUID
	RecordID    uuid.UUID
)

// FacilityID identifies the health facility a principal is affiliated with.
// It is assigned by the facility registry and is not a UUID.
type FacilityID string

// Parse functions - use at trust boundaries (handlers, route params, token claims).

func ParsePrincipalID(s string) (PrincipalID, error) {
	id, err := parseUUID(s, "principal ID")
	return PrincipalID(id), err
}

func ParseRecordID(s string) (RecordID, error) {
	id, err := parseUUID(s, "record ID")
	return RecordID(id), err
}

func ParseFacilityID(s string) (FacilityID, error) {
	s = strings.TrimSpace(s)
	if len(s) > 64 {
		return "", dErrors.New(dErrors.CodeValidation, "facility ID too long")
	}
	return FacilityID(s), nil
}

func NewPrincipalID() PrincipalID { return PrincipalID(uuid.New()) }
func NewRecordID() RecordID       { return RecordID(uuid.New()) }

func (id PrincipalID) String() string { return uuid.UUID(id).String() }
func (id RecordID) String() string    { return uuid.UUID(id).String() }
func (id FacilityID) String() string  { return string(id) }

func (id PrincipalID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" cannot be nil")
	}
	return id, nil
}
