// Package service implements the login flows: federated sign-in through the
// national identity provider and the local SMS one-time code fallback. Both
// end in a principal upsert and a signed session credential.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medfayda/internal/auth/metrics"
	"medfayda/internal/auth/models"
	"medfayda/internal/auth/otp"
	"medfayda/internal/auth/provider"
	"medfayda/internal/auth/replay"
	"medfayda/internal/platform/tracer"
	"medfayda/internal/session"
	id "medfayda/pkg/domain"
)

// PrincipalStore persists principals.
// Error Contract: Find methods, TouchLogin and Save return
// sentinel.ErrNotFound when nothing matches.
type PrincipalStore interface {
	UpsertOnLogin(ctx context.Context, candidate *models.Principal, now time.Time) (*models.Principal, bool, error)
	TouchLogin(ctx context.Context, principalID id.PrincipalID, now time.Time) (*models.Principal, error)
	FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error)
	FindByPhone(ctx context.Context, phone string) (*models.Principal, error)
	Save(ctx context.Context, p *models.Principal) error
}

// AttemptGuard issues and redeems single-use login attempts.
type AttemptGuard interface {
	Begin(ctx context.Context) (*replay.Attempt, error)
	Consume(ctx context.Context, state string) (*replay.Attempt, error)
}

// IdentityProvider is the OpenID Connect client for the national ID provider.
type IdentityProvider interface {
	AuthCodeURL(state, nonce, challenge string) string
	Exchange(ctx context.Context, code, verifier string) (*provider.TokenSet, error)
	VerifyIDToken(ctx context.Context, raw, expectedNonce string) (*provider.IdentityClaims, error)
	UserInfo(ctx context.Context, accessToken, expectedSubject string) (*provider.IdentityClaims, error)
	EndSessionURL(postLogoutRedirect string) string
}

// SessionIssuer signs session credentials.
type SessionIssuer interface {
	Issue(ctx context.Context, p *models.Principal) (*session.Credential, error)
}

// CodeStore holds SMS verification sessions.
// Error Contract: Verify returns sentinel errors for unknown, used, expired
// and exhausted sessions and otp.ErrCodeMismatch for a wrong code.
type CodeStore interface {
	Create(ctx context.Context, c *otp.Challenge) error
	Verify(ctx context.Context, id, code string, now time.Time) (*otp.Challenge, error)
}

// CodeSender delivers a one-time code to a phone number.
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// Config holds the login flow settings.
type Config struct {
	// LocalLoginEnabled turns on the SMS fallback. It is a deployment flag and
	// never relaxes the federated checks.
	LocalLoginEnabled bool
	CodeTTL           time.Duration
	// CodeHashCost is the bcrypt cost for stored codes.
	CodeHashCost int
	// PostLogoutRedirectURL is passed to the provider end-session endpoint.
	PostLogoutRedirectURL string
}

type Service struct {
	principals PrincipalStore
	attempts   AttemptGuard
	provider   IdentityProvider
	sessions   SessionIssuer
	codes      CodeStore
	sender     CodeSender
	throttle   *otp.Throttle
	cfg        Config

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithLocalLogin wires the SMS fallback stores. Without it SendCode and
// VerifyCode report the feature as disabled regardless of Config.
func WithLocalLogin(codes CodeStore, sender CodeSender, throttle *otp.Throttle) Option {
	return func(s *Service) {
		s.codes = codes
		s.sender = sender
		s.throttle = throttle
	}
}

func New(principals PrincipalStore, attempts AttemptGuard, idp IdentityProvider, sessions SessionIssuer, cfg Config, opts ...Option) (*Service, error) {
	if principals == nil || attempts == nil || idp == nil || sessions == nil {
		return nil, errors.New("principal store, attempt guard, provider and session issuer are required")
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = otp.DefaultTTL
	}
	svc := &Service{
		principals: principals,
		attempts:   attempts,
		provider:   idp,
		sessions:   sessions,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = tracer.NewNoop()
	}
	return svc, nil
}

// LocalLoginEnabled reports whether the SMS fallback is usable.
func (s *Service) LocalLoginEnabled() bool {
	return s.cfg.LocalLoginEnabled && s.codes != nil && s.sender != nil
}
