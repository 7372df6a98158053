// Package replay guards the federated login flow against forged and replayed
// callbacks. Every login attempt gets an unguessable state value that may be
// consumed at most once before it expires.
package replay

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"medfayda/internal/auth/metrics"
	"medfayda/internal/sentinel"
	dErrors "medfayda/pkg/domain-errors"
)

// DefaultTTL bounds how long a login attempt stays redeemable.
const DefaultTTL = 5 * time.Minute

// Attempt is one in-flight federated login, keyed by its state value.
type Attempt struct {
	State         string    `json:"state"`
	Nonce         string    `json:"nonce"`
	PKCEVerifier  string    `json:"pkce_verifier"`
	PKCEChallenge string    `json:"pkce_challenge"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Consumed      bool      `json:"consumed"`
}

// ID returns the opaque attempt identifier. It equals the state parameter.
func (a *Attempt) ID() string { return a.State }

// Expired reports whether the attempt can no longer be consumed at now.
func (a *Attempt) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Store persists attempts. ConsumeOnce must check and mark in one atomic step
// and return sentinel.ErrNotFound, sentinel.ErrExpired or sentinel.ErrAlreadyUsed
// when the attempt is unusable.
type Store interface {
	Put(ctx context.Context, attempt *Attempt) error
	ConsumeOnce(ctx context.Context, state string, now time.Time) (*Attempt, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Guard issues and redeems login attempts.
type Guard struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Guard.
type Option func(*Guard)

// WithTTL overrides the attempt lifetime when greater than zero.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// New constructs a Guard over store.
func New(store Store, opts ...Option) (*Guard, error) {
	if store == nil {
		return nil, errors.New("replay store is required")
	}
	g := &Guard{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Begin creates and stores a fresh attempt with random state, nonce and PKCE verifier.
func (g *Guard) Begin(ctx context.Context) (*Attempt, error) {
	state, err := randomToken(32)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate state")
	}
	nonce, err := randomToken(32)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate nonce")
	}
	verifier := oauth2.GenerateVerifier()

	now := g.now()
	attempt := &Attempt{
		State:         state,
		Nonce:         nonce,
		PKCEVerifier:  verifier,
		PKCEChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		CreatedAt:     now,
		ExpiresAt:     now.Add(g.ttl),
	}
	if err := g.store.Put(ctx, attempt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record login attempt")
	}
	if g.metrics != nil {
		g.metrics.IncAttemptsStarted()
	}
	return attempt, nil
}

// Consume redeems the attempt for state exactly once. Unknown, expired and
// already consumed attempts all fail with invalid_state.
func (g *Guard) Consume(ctx context.Context, state string) (*Attempt, error) {
	if state == "" {
		return nil, g.reject(ctx, "missing", dErrors.New(dErrors.CodeInvalidState, "state is required"))
	}
	attempt, err := g.store.ConsumeOnce(ctx, state, g.now())
	switch {
	case err == nil:
		if g.metrics != nil {
			g.metrics.IncAttemptsConsumed()
		}
		return attempt, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, g.reject(ctx, "unknown", dErrors.Wrap(err, dErrors.CodeInvalidState, "unknown login attempt"))
	case errors.Is(err, sentinel.ErrExpired):
		return nil, g.reject(ctx, "expired", dErrors.Wrap(err, dErrors.CodeInvalidState, "login attempt expired"))
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return nil, g.reject(ctx, "replayed", dErrors.Wrap(err, dErrors.CodeInvalidState, "login attempt already used"))
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to redeem login attempt")
	}
}

// Sweep removes expired attempts from the store.
func (g *Guard) Sweep(ctx context.Context) (int, error) {
	n, err := g.store.Sweep(ctx, g.now())
	if err != nil {
		return 0, fmt.Errorf("sweep login attempts: %w", err)
	}
	return n, nil
}

func (g *Guard) reject(ctx context.Context, reason string, err error) error {
	g.logger.WarnContext(ctx, "login attempt rejected", "reason", reason)
	if g.metrics != nil {
		g.metrics.IncAttemptsRejected(reason)
	}
	return err
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
