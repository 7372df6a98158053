package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	id "medfayda/pkg/domain"
	audit "medfayda/pkg/platform/audit"
)

const recordColumns = `id, recorded_at, actor_id, actor_role, subject_patient_id, action,
	resource_type, resource_id, facility_id, client_ip, user_agent, request_id,
	detail, success, error_message, prev_hash, hash`

// Store implements audit.Store using PostgreSQL. Rows are ordered by a
// bigserial seq column so chain order survives identical timestamps.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts a sealed record. The detail is stored as text, not jsonb,
// so its bytes are returned exactly as hashed.
func (s *Store) Append(ctx context.Context, r audit.Record) error {
	detail, err := json.Marshal(r.Detail)
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}
	query := `INSERT INTO audit_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		r.Timestamp,
		r.ActorID,
		r.ActorRole,
		r.SubjectPatientID,
		r.Action.String(),
		r.ResourceType,
		r.ResourceID,
		r.FacilityID,
		r.ClientIP,
		r.UserAgent,
		r.RequestID,
		string(detail),
		r.Success,
		r.ErrorMessage,
		r.PrevHash,
		r.Hash,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// LastHash returns the hash of the newest record.
func (s *Store) LastHash(ctx context.Context) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM audit_records ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query audit chain head: %w", err)
	}
	return hash, nil
}

// List returns matching records oldest first; a positive Limit keeps the newest matches.
func (s *Store) List(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if q.ActorID != "" {
		add("actor_id = ?", q.ActorID)
	}
	if q.SubjectPatientID != "" {
		add("subject_patient_id = ?", q.SubjectPatientID)
	}
	if q.Action != "" {
		add("action = ?", q.Action.String())
	}
	if !q.Since.IsZero() {
		add("recorded_at >= ?", q.Since)
	}
	if !q.Until.IsZero() {
		add("recorded_at < ?", q.Until)
	}

	query := `SELECT seq, ` + recordColumns + ` FROM audit_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if q.Limit > 0 {
		limit := q.Limit
		if limit > math.MaxInt32 {
			limit = math.MaxInt32
		}
		args = append(args, limit)
		query = `SELECT * FROM (` + query + ` ORDER BY seq DESC LIMIT $` + strconv.Itoa(len(args)) + `) newest`
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record
	for rows.Next() {
		var (
			seq    int64
			r      audit.Record
			action string
			detail string
		)
		err := rows.Scan(
			&seq,
			&r.ID,
			&r.Timestamp,
			&r.ActorID,
			&r.ActorRole,
			&r.SubjectPatientID,
			&action,
			&r.ResourceType,
			&r.ResourceID,
			&r.FacilityID,
			&r.ClientIP,
			&r.UserAgent,
			&r.RequestID,
			&detail,
			&r.Success,
			&r.ErrorMessage,
			&r.PrevHash,
			&r.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		r.Action = id.Action(action)
		if err := json.Unmarshal([]byte(detail), &r.Detail); err != nil {
			return nil, fmt.Errorf("decode audit detail %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
