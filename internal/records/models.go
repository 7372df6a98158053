// Package records serves the patient record surface that the access gate and
// the audit interceptor guard. Storage sits behind the Repository port.
package records

import (
	"strings"
	"time"

	"medfayda/internal/access"
	id "medfayda/pkg/domain"
	"medfayda/pkg/validation"
)

// Kind is the closed set of record kinds. Each maps onto an access resource
// type so lab technicians can be scoped to lab results.
type Kind string

const (
	KindMedicalRecord Kind = "medical_record"
	KindLabResult     Kind = "lab_result"
)

// ResourceType returns the access resource type the kind is authorized as.
func (k Kind) ResourceType() access.ResourceType {
	if k == KindLabResult {
		return access.ResourceLabResult
	}
	return access.ResourceRecord
}

// Record is one clinical entry owned by a patient.
type Record struct {
	ID         id.RecordID
	PatientID  id.PrincipalID
	Kind       Kind
	Title      string
	Content    string
	AuthorID   id.PrincipalID
	FacilityID id.FacilityID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RecordView is the JSON form of a record.
type RecordView struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patientId"`
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId"`
	FacilityID string    `json:"facilityId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (r *Record) View() RecordView {
	return RecordView{
		ID:         r.ID.String(),
		PatientID:  r.PatientID.String(),
		Kind:       r.Kind,
		Title:      r.Title,
		Content:    r.Content,
		AuthorID:   r.AuthorID.String(),
		FacilityID: r.FacilityID.String(),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// CreateRecordRequest adds a record to a patient's chart.
type CreateRecordRequest struct {
	Kind    Kind   `json:"kind" validate:"required,oneof=medical_record lab_result"`
	Title   string `json:"title" validate:"required,notblank,max=200"`
	Content string `json:"content" validate:"required,notblank,max=32768"`
}

func (r *CreateRecordRequest) Normalize() {
	r.Kind = Kind(strings.ToLower(strings.TrimSpace(string(r.Kind))))
	r.Title = strings.TrimSpace(r.Title)
}

func (r *CreateRecordRequest) Validate() error { return validation.Validate(r) }

// UpdateRecordRequest replaces a record's title and content. The kind of an
// existing record never changes.
type UpdateRecordRequest struct {
	Title   string `json:"title" validate:"required,notblank,max=200"`
	Content string `json:"content" validate:"required,notblank,max=32768"`
}

func (r *UpdateRecordRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
}

func (r *UpdateRecordRequest) Validate() error { return validation.Validate(r) }

// ListResult wraps a patient's records.
type ListResult struct {
	PatientID string       `json:"patientId"`
	Records   []RecordView `json:"records"`
}

// PatientView is what a patient search reveals.
type PatientView struct {
	ID   string `json:"id"`
	FIN  string `json:"fin"`
	Name string `json:"name,omitempty"`
}

// ExportResult is a patient's full chart.
type ExportResult struct {
	Patient    PatientView  `json:"patient"`
	Records    []RecordView `json:"records"`
	ExportedAt time.Time    `json:"exportedAt"`
}

func views(in []*Record) []RecordView {
	out := make([]RecordView, 0, len(in))
	for _, r := range in {
		out = append(out, r.View())
	}
	return out
}
