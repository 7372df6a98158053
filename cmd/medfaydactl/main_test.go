package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medfayda/internal/session"
	id "medfayda/pkg/domain"
	"medfayda/pkg/platform/audit"
	auditmemory "medfayda/pkg/platform/audit/store/memory"
)

const testKey = "cli-test-signing-key-0123456789abcdef"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenMint(t *testing.T) {
	t.Run("minted token verifies with the same key", func(t *testing.T) {
		pid := id.NewPrincipalID()
		out, err := execute(t, "token", "mint",
			"--key", testKey,
			"--principal-id", pid.String(),
			"--role", "Doctor",
			"--facility", "addis-01",
			"--ttl", "1h",
			"--json",
		)
		require.NoError(t, err)

		var res tokenOutput
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, pid.String(), res.PrincipalID)
		assert.Equal(t, "doctor", res.Role)

		issuer, err := session.NewIssuer(testKey, "medfayda", "medfayda-portal")
		require.NoError(t, err)
		p, err := issuer.Verify(res.Token)
		require.NoError(t, err)
		assert.Equal(t, pid, p.ID)
		assert.Equal(t, id.RoleDoctor, p.Role)
		assert.Equal(t, id.FacilityID("addis-01"), p.FacilityID)
		assert.Equal(t, res.TokenID, p.TokenID)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := execute(t, "token", "mint", "--key", testKey, "--role", "janitor")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown role")
	})

	t.Run("short key is refused", func(t *testing.T) {
		_, err := execute(t, "token", "mint", "--key", "short")
		require.Error(t, err)
	})

	t.Run("malformed principal id", func(t *testing.T) {
		_, err := execute(t, "token", "mint", "--key", testKey, "--principal-id", "not-a-uuid")
		require.Error(t, err)
	})
}

func sealedTrail(t *testing.T, n int) *auditmemory.Store {
	t.Helper()
	store := auditmemory.NewInMemoryStore()
	prev := ""
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range n {
		rec := audit.Record{
			ID:        audit.NewID(base),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			ActorID:   "actor-" + string(rune('a'+i%2)),
			ActorRole: "doctor",
			Action:    id.ActionViewRecord,
			Success:   true,
		}
		require.NoError(t, audit.Seal(&rec, prev))
		require.NoError(t, store.Append(context.Background(), rec))
		prev = rec.Hash
	}
	return store
}

func TestVerifyTrail(t *testing.T) {
	ctx := context.Background()

	t.Run("intact chain", func(t *testing.T) {
		var out bytes.Buffer
		err := verifyTrail(ctx, sealedTrail(t, 4), audit.Query{}, &out)
		require.NoError(t, err)
		assert.Contains(t, out.String(), "verified 4 records")
	})

	t.Run("empty trail", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, verifyTrail(ctx, auditmemory.NewInMemoryStore(), audit.Query{}, &out))
		assert.Contains(t, out.String(), "no audit records")
	})

	t.Run("filtered query checks records individually", func(t *testing.T) {
		var out bytes.Buffer
		err := verifyTrail(ctx, sealedTrail(t, 4), audit.Query{ActorID: "actor-a"}, &out)
		require.NoError(t, err)
		assert.Contains(t, out.String(), "verified 2 records")
	})

	t.Run("tampered record", func(t *testing.T) {
		store := auditmemory.NewInMemoryStore()
		for i, rec := range mustList(t, sealedTrail(t, 3)) {
			if i == 1 {
				rec.Success = false
			}
			require.NoError(t, store.Append(ctx, rec))
		}

		var out bytes.Buffer
		err := verifyTrail(ctx, store, audit.Query{}, &out)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errChainBroken))
		assert.True(t, errors.Is(err, audit.ErrChainBroken))
		assert.Contains(t, out.String(), "BROKEN")
	})
}

func mustList(t *testing.T, store *auditmemory.Store) []audit.Record {
	t.Helper()
	recs, err := store.List(context.Background(), audit.Query{})
	require.NoError(t, err)
	return recs
}
