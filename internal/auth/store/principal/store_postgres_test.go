package principal

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medfayda/internal/sentinel"
	id "medfayda/pkg/domain"
)

var principalRowColumns = []string{
	"id", "external_subject", "fin", "phone", "email", "given_name", "middle_name", "family_name",
	"birth_date", "gender", "picture_url", "role", "facility_id", "license_number", "specialization",
	"active", "created_at", "updated_at", "last_login_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresStore_UpsertOnLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := candidate("fayda-9")

	t.Run("reports insert from xmax", func(t *testing.T) {
		store, mock := newMockStore(t)
		rows := sqlmock.NewRows(append(principalRowColumns, "inserted")).AddRow(
			c.ID.String(), "fayda-9", "FIN-fayda-9", nil, nil, "Abebe", "", "",
			"", "", "", "patient", "", "", "",
			true, now, now, now, true,
		)
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO principals")).
			WithArgs(sqlmock.AnyArg(), "fayda-9", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				"Abebe", "", "", "", "", "", "patient", "", "", "", true, now).
			WillReturnRows(rows)

		p, created, err := store.UpsertOnLogin(ctx, c, now)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, c.ID, p.ID)
		assert.Equal(t, id.RolePatient, p.Role)
		require.NotNil(t, p.LastLoginAt)
		assert.Empty(t, p.Phone)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing subject is not created", func(t *testing.T) {
		store, mock := newMockStore(t)
		existing := id.NewPrincipalID()
		rows := sqlmock.NewRows(append(principalRowColumns, "inserted")).AddRow(
			existing.String(), "fayda-9", "FIN-fayda-9", "+251911000000", nil, "Abebe", "", "",
			"", "", "", "doctor", "hc-1", "MD-1", "cardiology",
			true, now.Add(-time.Hour), now, now, false,
		)
		mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (external_subject)")).WillReturnRows(rows)

		p, created, err := store.UpsertOnLogin(ctx, c, now)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing, p.ID)
		assert.Equal(t, id.RoleDoctor, p.Role)
		assert.Equal(t, id.FacilityID("hc-1"), p.FacilityID)
	})

	t.Run("unique violation on fin is a conflict", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO principals")).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, _, err := store.UpsertOnLogin(ctx, c, now)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})
}

func TestPostgresStore_FindByID(t *testing.T) {
	ctx := context.Background()

	t.Run("no rows is not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM principals WHERE id = $1")).
			WillReturnError(sql.ErrNoRows)

		_, err := store.FindByID(ctx, id.NewPrincipalID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresStore_TouchLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("returns the updated principal", func(t *testing.T) {
		store, mock := newMockStore(t)
		existing := id.NewPrincipalID()
		rows := sqlmock.NewRows(principalRowColumns).AddRow(
			existing.String(), "fayda-doc", "FIN-fayda-doc", "+251911000111", nil, "Hana", "", "",
			"", "", "", "doctor", "hc-1", "MD-7", "",
			true, now.Add(-24*time.Hour), now, now,
		)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE principals SET last_login_at = $2")).
			WithArgs(sqlmock.AnyArg(), now).
			WillReturnRows(rows)

		p, err := store.TouchLogin(ctx, existing, now)
		require.NoError(t, err)
		assert.Equal(t, existing, p.ID)
		assert.Equal(t, id.RoleDoctor, p.Role)
		require.NotNil(t, p.LastLoginAt)
		assert.Equal(t, now, *p.LastLoginAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown principal is not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE principals SET last_login_at")).
			WillReturnError(sql.ErrNoRows)

		_, err := store.TouchLogin(ctx, id.NewPrincipalID(), now)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresStore_FindByPhone(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM principals WHERE phone = $1 ORDER BY created_at LIMIT 1")).
		WithArgs("+251911000111").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByPhone(context.Background(), "+251911000111")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("missing row is not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE principals SET")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Save(ctx, candidate("fayda-x"))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("updates one row", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE principals SET")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Save(ctx, candidate("fayda-y")))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
