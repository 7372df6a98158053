package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "medfayda/pkg/domain"
)

func chain(t *testing.T, n int) []Record {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	records := make([]Record, n)
	prev := ""
	for i := range records {
		r := Record{
			ID:        NewID(base.Add(time.Duration(i) * time.Second)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			ActorID:   "doctor-1",
			ActorRole: "doctor",
			Action:    id.ActionViewRecord,
			Detail:    Detail{Method: "GET", Path: "/patients/p/records", Status: 200},
			Success:   true,
		}
		require.NoError(t, Seal(&r, prev))
		prev = r.Hash
		records[i] = r
	}
	return records
}

func TestSeal(t *testing.T) {
	r := Record{ID: "a", Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 999, time.FixedZone("EAT", 3*3600))}
	require.NoError(t, Seal(&r, "prev"))

	assert.Equal(t, "prev", r.PrevHash)
	assert.Len(t, r.Hash, 64)
	assert.Equal(t, time.UTC, r.Timestamp.Location())
	assert.Zero(t, r.Timestamp.Nanosecond()%1000, "timestamps are truncated to microseconds")

	again := r
	require.NoError(t, Seal(&again, "prev"))
	assert.Equal(t, r.Hash, again.Hash, "sealing is deterministic")
}

func TestVerifyChain(t *testing.T) {
	t.Run("intact chain", func(t *testing.T) {
		idx, err := VerifyChain(chain(t, 5))
		require.NoError(t, err)
		assert.Equal(t, -1, idx)
	})

	t.Run("empty chain", func(t *testing.T) {
		idx, err := VerifyChain(nil)
		require.NoError(t, err)
		assert.Equal(t, -1, idx)
	})

	t.Run("edited content", func(t *testing.T) {
		records := chain(t, 5)
		records[2].Detail.Status = 403

		idx, err := VerifyChain(records)
		assert.True(t, errors.Is(err, ErrChainBroken))
		assert.Equal(t, 2, idx)
	})

	t.Run("deleted record", func(t *testing.T) {
		records := chain(t, 5)
		records = append(records[:1], records[2:]...)

		idx, err := VerifyChain(records)
		assert.True(t, errors.Is(err, ErrChainBroken))
		assert.Equal(t, 1, idx)
	})

	t.Run("resealed record still breaks its successor", func(t *testing.T) {
		records := chain(t, 4)
		records[1].Success = false
		require.NoError(t, Seal(&records[1], records[1].PrevHash))

		idx, err := VerifyChain(records)
		assert.True(t, errors.Is(err, ErrChainBroken))
		assert.Equal(t, 2, idx)
	})

	t.Run("window of a longer chain", func(t *testing.T) {
		idx, err := VerifyChain(chain(t, 6)[3:])
		require.NoError(t, err)
		assert.Equal(t, -1, idx)
	})
}

func TestQueryMatches(t *testing.T) {
	r := chain(t, 1)[0]
	r.SubjectPatientID = "patient-1"

	assert.True(t, Query{}.Matches(r))
	assert.True(t, Query{ActorID: "doctor-1", SubjectPatientID: "patient-1"}.Matches(r))
	assert.False(t, Query{Action: id.ActionLogin}.Matches(r))
	assert.False(t, Query{Since: r.Timestamp.Add(time.Second)}.Matches(r))
	assert.False(t, Query{Until: r.Timestamp}.Matches(r))
	assert.True(t, Query{Until: r.Timestamp.Add(time.Nanosecond)}.Matches(r))
}

func TestSuccessFromStatus(t *testing.T) {
	assert.True(t, SuccessFromStatus(200))
	assert.True(t, SuccessFromStatus(302))
	assert.False(t, SuccessFromStatus(400))
	assert.False(t, SuccessFromStatus(503))
}
