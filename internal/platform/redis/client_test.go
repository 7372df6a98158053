package redis

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medfayda/internal/platform/config"
)

type fixedPool struct{ stats redis.PoolStats }

func (f fixedPool) PoolStats() *redis.PoolStats { return &f.stats }

func TestPoolCollector(t *testing.T) {
	c := NewPoolCollector(fixedPool{stats: redis.PoolStats{Hits: 7, Misses: 2, TotalConns: 4, IdleConns: 3}})
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP medfayda_redis_pool_hits_total Number of times a connection was found in the pool
# TYPE medfayda_redis_pool_hits_total counter
medfayda_redis_pool_hits_total 7
# HELP medfayda_redis_pool_idle_conns Number of idle connections in the pool
# TYPE medfayda_redis_pool_idle_conns gauge
medfayda_redis_pool_idle_conns 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"medfayda_redis_pool_hits_total", "medfayda_redis_pool_idle_conns"))
}

func TestNew(t *testing.T) {
	t.Run("empty URL disables redis", func(t *testing.T) {
		c, err := New(context.Background(), config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := New(context.Background(), config.RedisConfig{URL: "memcached://nope"})
		assert.ErrorContains(t, err, "parse redis URL")
	})
}
