package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"medfayda/internal/sentinel"
	id "medfayda/pkg/domain"
)

const recordColumns = `id, patient_id, kind, title, content, author_id, facility_id, created_at, updated_at`

// PostgresStore persists records in the medical_records table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID id.PrincipalID) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM medical_records WHERE patient_id = $1 ORDER BY created_at`,
		uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]*Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, patientID id.PrincipalID, recordID id.RecordID) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM medical_records WHERE id = $1 AND patient_id = $2`,
		uuid.UUID(recordID), uuid.UUID(patientID))
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medical_records (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(r.ID), uuid.UUID(r.PatientID), string(r.Kind), r.Title, r.Content,
		uuid.UUID(r.AuthorID), string(r.FacilityID), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, r *Record) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medical_records SET title = $3, content = $4, updated_at = $5 WHERE id = $1 AND patient_id = $2`,
		uuid.UUID(r.ID), uuid.UUID(r.PatientID), r.Title, r.Content, r.UpdatedAt)
	return affectedOne(res, err, "update", r.ID)
}

func (s *PostgresStore) Delete(ctx context.Context, patientID id.PrincipalID, recordID id.RecordID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM medical_records WHERE id = $1 AND patient_id = $2`,
		uuid.UUID(recordID), uuid.UUID(patientID))
	return affectedOne(res, err, "delete", recordID)
}

func affectedOne(res sql.Result, err error, op string, recordID id.RecordID) error {
	if err != nil {
		return fmt.Errorf("%s record: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s record: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r                        Record
		rid, patientID, authorID uuid.UUID
		kind, facility           string
	)
	if err := row.Scan(&rid, &patientID, &kind, &r.Title, &r.Content, &authorID, &facility, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.ID = id.RecordID(rid)
	r.PatientID = id.PrincipalID(patientID)
	r.AuthorID = id.PrincipalID(authorID)
	r.Kind = Kind(kind)
	r.FacilityID = id.FacilityID(facility)
	return &r, nil
}
