package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"medfayda/internal/auth/models"
	"medfayda/internal/sentinel"
	id "medfayda/pkg/domain"
)

const principalColumns = `id, external_subject, fin, phone, email, given_name, middle_name, family_name,
	birth_date, gender, picture_url, role, facility_id, license_number, specialization,
	active, created_at, updated_at, last_login_at`

// PostgresStore persists principals in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// UpsertOnLogin inserts candidate or, when its external subject already
// exists, touches only last_login_at. xmax = 0 identifies a fresh insert.
func (s *PostgresStore) UpsertOnLogin(ctx context.Context, candidate *models.Principal, now time.Time) (*models.Principal, bool, error) {
	if candidate == nil || candidate.ExternalSubject == "" {
		return nil, false, fmt.Errorf("principal with external subject is required")
	}
	query := `INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17, $17)
		ON CONFLICT (external_subject) DO UPDATE
			SET last_login_at = EXCLUDED.last_login_at, updated_at = EXCLUDED.updated_at
		RETURNING ` + principalColumns + `, (xmax = 0) AS inserted`

	row := s.db.QueryRowContext(ctx, query,
		uuid.UUID(candidate.ID),
		candidate.ExternalSubject,
		nullable(candidate.FIN),
		nullable(candidate.Phone),
		nullable(candidate.Email),
		candidate.GivenName,
		candidate.MiddleName,
		candidate.FamilyName,
		candidate.BirthDate,
		string(candidate.Gender),
		candidate.PictureURL,
		string(candidate.Role),
		string(candidate.FacilityID),
		candidate.LicenseNumber,
		candidate.Specialization,
		candidate.Active,
		now,
	)

	var inserted bool
	p, err := scanPrincipal(row, &inserted)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, fmt.Errorf("principal fin or phone already registered: %w", sentinel.ErrConflict)
		}
		return nil, false, fmt.Errorf("upsert principal: %w", err)
	}
	return p, inserted, nil
}

// TouchLogin stamps last_login_at on an existing principal.
func (s *PostgresStore) TouchLogin(ctx context.Context, principalID id.PrincipalID, now time.Time) (*models.Principal, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE principals SET last_login_at = $2, updated_at = $2
		WHERE id = $1 RETURNING `+principalColumns, uuid.UUID(principalID), now)
	p, err := scanPrincipal(row, nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("principal %s: %w", principalID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("touch principal login: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error) {
	return s.findOne(ctx, `id = $1`, uuid.UUID(principalID))
}

func (s *PostgresStore) FindByPhone(ctx context.Context, phone string) (*models.Principal, error) {
	return s.findOne(ctx, `phone = $1`, phone)
}

func (s *PostgresStore) FindByFIN(ctx context.Context, fin string) (*models.Principal, error) {
	return s.findOne(ctx, `fin = $1`, fin)
}

// Save replaces profile fields of an existing principal.
func (s *PostgresStore) Save(ctx context.Context, p *models.Principal) error {
	res, err := s.db.ExecContext(ctx, `UPDATE principals SET
			fin = $2, phone = $3, email = $4, given_name = $5, middle_name = $6, family_name = $7,
			birth_date = $8, gender = $9, picture_url = $10, role = $11, facility_id = $12,
			license_number = $13, specialization = $14, active = $15, updated_at = $16
		WHERE id = $1`,
		uuid.UUID(p.ID), nullable(p.FIN), nullable(p.Phone), nullable(p.Email),
		p.GivenName, p.MiddleName, p.FamilyName, p.BirthDate, string(p.Gender), p.PictureURL,
		string(p.Role), string(p.FacilityID), p.LicenseNumber, p.Specialization, p.Active, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save principal: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("save principal: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save principal rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("principal %s: %w", p.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE `+where+` ORDER BY created_at LIMIT 1`, arg)
	p, err := scanPrincipal(row, nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("principal not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find principal: %w", err)
	}
	return p, nil
}

func scanPrincipal(row *sql.Row, inserted *bool) (*models.Principal, error) {
	var (
		p                 models.Principal
		pid               uuid.UUID
		fin, phone, email sql.NullString
		gender, role      string
		facility          string
		lastLogin         sql.NullTime
	)
	dest := []any{
		&pid, &p.ExternalSubject, &fin, &phone, &email, &p.GivenName, &p.MiddleName, &p.FamilyName,
		&p.BirthDate, &gender, &p.PictureURL, &role, &facility, &p.LicenseNumber, &p.Specialization,
		&p.Active, &p.CreatedAt, &p.UpdatedAt, &lastLogin,
	}
	if inserted != nil {
		dest = append(dest, inserted)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	p.ID = id.PrincipalID(pid)
	p.FIN = fin.String
	p.Phone = phone.String
	p.Email = email.String
	p.Gender = models.Gender(gender)
	p.Role = id.Role(role)
	p.FacilityID = id.FacilityID(facility)
	if lastLogin.Valid {
		t := lastLogin.Time
		p.LastLoginAt = &t
	}
	return &p, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
