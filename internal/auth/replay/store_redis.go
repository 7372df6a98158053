package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medfayda/internal/sentinel"
)

const attemptKeyPrefix = "login_attempt:"

// redisCommands is the subset of go-redis used by RedisStore.
type redisCommands interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// RedisStore shares attempts across service instances. Expiry is delegated to
// key TTLs and GETDEL makes consumption a single atomic command, so a replayed
// state always reads as not found.
type RedisStore struct {
	client redisCommands
}

func NewRedisStore(client redisCommands) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, attempt *Attempt) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	ttl := time.Until(attempt.ExpiresAt)
	if ttl <= 0 {
		return sentinel.ErrExpired
	}
	ok, err := s.client.SetNX(ctx, attemptKeyPrefix+attempt.State, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("store attempt: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) ConsumeOnce(ctx context.Context, state string, now time.Time) (*Attempt, error) {
	raw, err := s.client.GetDel(ctx, attemptKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume attempt: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	var attempt Attempt
	if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
		return nil, fmt.Errorf("decode attempt: %w", err)
	}
	// Key TTL and attempt expiry can drift by clock skew between instances.
	if attempt.Expired(now) {
		return nil, sentinel.ErrExpired
	}
	attempt.Consumed = true
	return &attempt, nil
}

// Sweep is a no-op: Redis evicts expired keys itself.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
