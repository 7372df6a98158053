package records

import (
	"context"
	"errors"
	"log/slog"

	"medfayda/internal/access"
	"medfayda/internal/auth/models"
	"medfayda/internal/sentinel"
	id "medfayda/pkg/domain"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/middleware/requesttime"
	"medfayda/pkg/requestcontext"
)

// Repository stores records.
// Error Contract: Get, Update and Delete return sentinel.ErrNotFound when the
// record does not exist or belongs to a different patient.
type Repository interface {
	ListByPatient(ctx context.Context, patientID id.PrincipalID) ([]*Record, error)
	Get(ctx context.Context, patientID id.PrincipalID, recordID id.RecordID) (*Record, error)
	Create(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, patientID id.PrincipalID, recordID id.RecordID) error
}

// PatientDirectory resolves patients from the principal store.
type PatientDirectory interface {
	FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error)
	FindByFIN(ctx context.Context, fin string) (*models.Principal, error)
}

// Authorizer is the access gate. Writes are authorized here rather than on
// the route because the resource type depends on the record kind.
type Authorizer interface {
	Authorize(ctx context.Context, p requestcontext.Principal, action id.Action, res access.Resource) error
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	gate     Authorizer
	logger   *slog.Logger
}

func NewService(repo Repository, patients PatientDirectory, gate Authorizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, patients: patients, gate: gate, logger: logger}
}

func (s *Service) List(ctx context.Context, patientID id.PrincipalID) (*ListResult, error) {
	recs, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, translate(err, "failed to list records")
	}
	return &ListResult{PatientID: patientID.String(), Records: views(recs)}, nil
}

func (s *Service) Get(ctx context.Context, patientID id.PrincipalID, recordID id.RecordID) (*RecordView, error) {
	r, err := s.repo.Get(ctx, patientID, recordID)
	if err != nil {
		return nil, translate(err, "failed to load record")
	}
	v := r.View()
	return &v, nil
}

// Create adds a record to a patient's chart on behalf of actor.
func (s *Service) Create(ctx context.Context, actor requestcontext.Principal, patientID id.PrincipalID, req *CreateRecordRequest) (*RecordView, error) {
	if err := s.gate.Authorize(ctx, actor, id.ActionCreateRecord, access.Resource{
		Type:    req.Kind.ResourceType(),
		OwnerID: patientID,
	}); err != nil {
		return nil, err
	}
	if _, err := s.patient(ctx, patientID); err != nil {
		return nil, err
	}

	now := requesttime.Now(ctx)
	r := &Record{
		ID:         id.NewRecordID(),
		PatientID:  patientID,
		Kind:       req.Kind,
		Title:      req.Title,
		Content:    req.Content,
		AuthorID:   actor.ID,
		FacilityID: actor.FacilityID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, translate(err, "failed to create record")
	}
	s.logger.InfoContext(ctx, "record created",
		"record_id", r.ID.String(),
		"kind", string(r.Kind),
		"request_id", requestcontext.RequestID(ctx),
	)
	v := r.View()
	return &v, nil
}

// Update replaces title and content. The stored kind decides the resource
// type the actor is authorized against.
func (s *Service) Update(ctx context.Context, actor requestcontext.Principal, patientID id.PrincipalID, recordID id.RecordID, req *UpdateRecordRequest) (*RecordView, error) {
	r, err := s.repo.Get(ctx, patientID, recordID)
	if err != nil {
		return nil, translate(err, "failed to load record")
	}
	if err := s.gate.Authorize(ctx, actor, id.ActionUpdateRecord, resourceOf(r)); err != nil {
		return nil, err
	}

	r.Title = req.Title
	r.Content = req.Content
	r.UpdatedAt = requesttime.Now(ctx)
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, translate(err, "failed to update record")
	}
	v := r.View()
	return &v, nil
}

func (s *Service) Delete(ctx context.Context, actor requestcontext.Principal, patientID id.PrincipalID, recordID id.RecordID) error {
	r, err := s.repo.Get(ctx, patientID, recordID)
	if err != nil {
		return translate(err, "failed to load record")
	}
	if err := s.gate.Authorize(ctx, actor, id.ActionDeleteRecord, resourceOf(r)); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, patientID, recordID); err != nil {
		return translate(err, "failed to delete record")
	}
	s.logger.InfoContext(ctx, "record deleted",
		"record_id", recordID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// SearchByFIN finds a patient by national identification number. Only
// principals with the patient role are returned.
func (s *Service) SearchByFIN(ctx context.Context, fin string) (*PatientView, error) {
	p, err := s.patients.FindByFIN(ctx, fin)
	if err != nil || p.Role != id.RolePatient {
		if err == nil || errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return nil, translate(err, "failed to search patients")
	}
	v := patientView(p)
	return &v, nil
}

// Export returns the patient's full chart.
func (s *Service) Export(ctx context.Context, patientID id.PrincipalID) (*ExportResult, error) {
	p, err := s.patient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, translate(err, "failed to export records")
	}
	return &ExportResult{
		Patient:    patientView(p),
		Records:    views(recs),
		ExportedAt: requesttime.Now(ctx),
	}, nil
}

func (s *Service) patient(ctx context.Context, patientID id.PrincipalID) (*models.Principal, error) {
	p, err := s.patients.FindByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return nil, translate(err, "failed to load patient")
	}
	if p.Role != id.RolePatient {
		return nil, dErrors.New(dErrors.CodeNotFound, "patient not found")
	}
	return p, nil
}

func resourceOf(r *Record) access.Resource {
	return access.Resource{Type: r.Kind.ResourceType(), ID: r.ID.String(), OwnerID: r.PatientID}
}

func patientView(p *models.Principal) PatientView {
	return PatientView{ID: p.ID.String(), FIN: p.FIN, Name: p.FullName()}
}

// translate maps store errors onto domain errors.
func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "record already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
