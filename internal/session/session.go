// Package session issues and verifies the stateless signed credential that
// carries a principal's identity, role and facility between requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"medfayda/internal/auth/models"
	id "medfayda/pkg/domain"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/middleware/requesttime"
	"medfayda/pkg/requestcontext"
)

// DefaultTTL is the credential lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

const minKeyLength = 32

var (
	// ErrExpired marks a well-formed credential whose lifetime has passed.
	ErrExpired = dErrors.New(dErrors.CodeExpiredCredential, "session expired")
	// ErrInvalid marks any other rejected credential.
	ErrInvalid = dErrors.New(dErrors.CodeInvalidCredential, "invalid session token")
)

// Claims is the signed payload: subject, role and facility plus registered claims.
type Claims struct {
	Role       string `json:"role"`
	FacilityID string `json:"facility_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the verified identity extracted from a credential. It is the
// same value the auth middleware places in the request context.
type Principal = requestcontext.Principal

// Credential is an issued session token.
type Credential struct {
	Token     string
	ExpiresAt time.Time
	TokenID   string
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTTL overrides the credential lifetime when greater than zero.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock sets the time source used by Verify.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer builds an Issuer. The signing key must be at least 32 bytes.
func NewIssuer(signingKey, issuer, audience string, opts ...Option) (*Issuer, error) {
	if len(signingKey) < minKeyLength {
		return nil, fmt.Errorf("session signing key must be at least %d bytes", minKeyLength)
	}
	i := &Issuer{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

// Issue signs a credential for p using the request-scoped time from ctx.
func (i *Issuer) Issue(ctx context.Context, p *models.Principal) (*Credential, error) {
	if p == nil || p.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInternal, "principal is required")
	}
	if !p.Role.Valid() {
		return nil, dErrors.New(dErrors.CodeInternal, "principal has unknown role")
	}
	now := requesttime.Now(ctx).Truncate(time.Second)
	expiresAt := now.Add(i.ttl)
	jti := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:       p.Role.String(),
		FacilityID: p.FacilityID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	})
	signed, err := token.SignedString(i.key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session")
	}
	return &Credential{Token: signed, ExpiresAt: expiresAt, TokenID: jti}, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry. It returns
// ErrExpired only for otherwise valid tokens past their expiry.
func (i *Issuer) Verify(token string) (*Principal, error) {
	if token == "" {
		return nil, ErrInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	})
	if err != nil {
		// jwt/v5 joins every failed check; expired only counts when the signature held.
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
			!errors.Is(err, jwt.ErrTokenInvalidIssuer) && !errors.Is(err, jwt.ErrTokenInvalidAudience) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	pid, err := id.ParsePrincipalID(claims.Subject)
	if err != nil {
		return nil, ErrInvalid
	}
	role, ok := id.ParseRole(claims.Role)
	if !ok {
		return nil, ErrInvalid
	}
	return &Principal{
		ID:         pid,
		Role:       role,
		FacilityID: id.FacilityID(claims.FacilityID),
		ExpiresAt:  claims.ExpiresAt.Time,
		TokenID:    claims.ID,
	}, nil
}
