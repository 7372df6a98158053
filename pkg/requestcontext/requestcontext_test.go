package requestcontext

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "medfayda/pkg/domain"
)

func TestPrincipalSlot(t *testing.T) {
	p := Principal{ID: id.PrincipalID(uuid.New()), Role: id.RoleNurse}

	t.Run("inner WithPrincipal is visible to the outer slot", func(t *testing.T) {
		outer := WithPrincipalSlot(context.Background())
		inner := WithPrincipal(outer, p)

		got, ok := ReportedPrincipal(outer)
		assert.True(t, ok)
		assert.Equal(t, p, got)

		_, ok = PrincipalFrom(outer)
		assert.False(t, ok, "the outer context itself is unchanged")
		got, ok = PrincipalFrom(inner)
		assert.True(t, ok)
		assert.Equal(t, p, got)
	})

	t.Run("no slot", func(t *testing.T) {
		ReportPrincipal(context.Background(), p)
		_, ok := ReportedPrincipal(context.Background())
		assert.False(t, ok)
	})

	t.Run("empty slot", func(t *testing.T) {
		_, ok := ReportedPrincipal(WithPrincipalSlot(context.Background()))
		assert.False(t, ok)
	})
}

func TestMetadata(t *testing.T) {
	ctx := WithClientMetadata(context.Background(), "10.0.0.1", "ua")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithDevice(ctx, "bot")

	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "ua", UserAgent(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "bot", Device(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
