package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "medfayda/pkg/domain"
	audit "medfayda/pkg/platform/audit"
)

var rowColumns = []string{
	"seq", "id", "recorded_at", "actor_id", "actor_role", "subject_patient_id", "action",
	"resource_type", "resource_id", "facility_id", "client_ip", "user_agent", "request_id",
	"detail", "success", "error_message", "prev_hash", "hash",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func sealed(t *testing.T, prev string) audit.Record {
	t.Helper()
	r := audit.Record{
		ID:               "01JB0000000000000000000000",
		Timestamp:        time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC),
		ActorID:          "doctor-1",
		ActorRole:        "doctor",
		SubjectPatientID: "patient-1",
		Action:           id.ActionViewRecord,
		ResourceType:     "medical_record",
		ResourceID:       "rec-1",
		Detail: audit.Detail{
			Method:      "POST",
			Path:        "/patients/patient-1/records",
			Status:      201,
			LatencyMS:   12,
			RequestBody: audit.RedactJSON([]byte(`{"note":"ok","dose":2.5,"password":"x"}`)),
			Query:       map[string]any{"page": "2"},
		},
		Success: true,
	}
	require.NoError(t, audit.Seal(&r, prev))
	return r
}

func rowFor(t *testing.T, seq int64, r audit.Record) []any {
	t.Helper()
	detail, err := json.Marshal(r.Detail)
	require.NoError(t, err)
	return []any{
		seq, r.ID, r.Timestamp, r.ActorID, r.ActorRole, r.SubjectPatientID, r.Action.String(),
		r.ResourceType, r.ResourceID, r.FacilityID, r.ClientIP, r.UserAgent, r.RequestID,
		string(detail), r.Success, r.ErrorMessage, r.PrevHash, r.Hash,
	}
}

func TestStore_Append(t *testing.T) {
	store, mock := newMockStore(t)
	r := sealed(t, "")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_records")).
		WithArgs(r.ID, r.Timestamp, "doctor-1", "doctor", "patient-1", "view_record",
			"medical_record", "rec-1", "", "", "", "", sqlmock.AnyArg(), true, "", "", r.Hash).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Append(context.Background(), r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AppendWrapsDriverErrors(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_records")).WillReturnError(errors.New("connection reset"))

	err := store.Append(context.Background(), sealed(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert audit record")
}

func TestStore_LastHash(t *testing.T) {
	t.Run("empty table", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT hash FROM audit_records ORDER BY seq DESC LIMIT 1")).
			WillReturnRows(sqlmock.NewRows([]string{"hash"}))

		head, err := store.LastHash(context.Background())
		require.NoError(t, err)
		assert.Empty(t, head)
	})

	t.Run("newest row", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT hash FROM audit_records")).
			WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow("abc"))

		head, err := store.LastHash(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc", head)
	})
}

func TestStore_ListRoundTripKeepsChainIntact(t *testing.T) {
	store, mock := newMockStore(t)
	first := sealed(t, "")
	second := sealed(t, first.Hash)
	second.ID = "01JB0000000000000000000001"
	require.NoError(t, audit.Seal(&second, first.Hash))

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_records WHERE subject_patient_id = $1 ORDER BY seq ASC")).
		WithArgs("patient-1").
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(rowFor(t, 1, first)...).AddRow(rowFor(t, 2, second)...))

	records, err := store.List(context.Background(), audit.Query{SubjectPatientID: "patient-1"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	idx, err := audit.VerifyChain(records)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
	assert.Equal(t, id.ActionViewRecord, records[1].Action)
}

func TestStore_ListWithLimitSelectsNewest(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE actor_id = $1 AND action = $2 AND recorded_at >= $3 ORDER BY seq DESC LIMIT $4) newest ORDER BY seq ASC")).
		WithArgs("doctor-1", "view_record", since, 10).
		WillReturnRows(sqlmock.NewRows(rowColumns))

	records, err := store.List(context.Background(), audit.Query{
		ActorID: "doctor-1",
		Action:  id.ActionViewRecord,
		Since:   since,
		Limit:   10,
	})
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListRejectsCorruptDetail(t *testing.T) {
	store, mock := newMockStore(t)
	row := rowFor(t, 1, sealed(t, ""))
	row[13] = "{not json"
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_records")).
		WillReturnRows(sqlmock.NewRows(rowColumns).AddRow(row...))

	_, err := store.List(context.Background(), audit.Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode audit detail")
}
