package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medfayda/internal/auth/models"
	id "medfayda/pkg/domain"
	"medfayda/pkg/platform/middleware/requesttime"
)

const testKey = "0123456789abcdef0123456789abcdef"

var issuedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer(testKey, "medfayda", "medfayda-api", WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return i
}

func doctor() *models.Principal {
	return &models.Principal{ID: id.NewPrincipalID(), Role: id.RoleDoctor, FacilityID: "hc-addis-01"}
}

func issue(t *testing.T, i *Issuer, p *models.Principal) *Credential {
	t.Helper()
	cred, err := i.Issue(requesttime.WithTime(context.Background(), issuedAt), p)
	require.NoError(t, err)
	return cred
}

func Test_IssueVerifyRoundTrip(t *testing.T) {
	p := doctor()
	cred := issue(t, newIssuer(t, issuedAt), p)
	assert.Equal(t, issuedAt.Add(DefaultTTL), cred.ExpiresAt)

	got, err := newIssuer(t, issuedAt.Add(23*time.Hour)).Verify(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, id.RoleDoctor, got.Role)
	assert.Equal(t, id.FacilityID("hc-addis-01"), got.FacilityID)
	assert.Equal(t, cred.TokenID, got.TokenID)
}

func Test_VerifyExpired(t *testing.T) {
	cred := issue(t, newIssuer(t, issuedAt), doctor())

	_, err := newIssuer(t, issuedAt.Add(DefaultTTL+time.Second)).Verify(cred.Token)
	assert.ErrorIs(t, err, ErrExpired)
}

func Test_VerifyInvalid(t *testing.T) {
	i := newIssuer(t, issuedAt)
	cred := issue(t, i, doctor())

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not-a-jwt",
		"tampered":  cred.Token[:len(cred.Token)-2] + "xx",
		"truncated": cred.Token[:len(cred.Token)/2],
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := i.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	t.Run("signed with another key", func(t *testing.T) {
		other, err := NewIssuer("ffffffffffffffffffffffffffffffff", "medfayda", "medfayda-api")
		require.NoError(t, err)
		_, err = i.Verify(issue(t, other, doctor()).Token)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("expired and forged is invalid not expired", func(t *testing.T) {
		other, err := NewIssuer("ffffffffffffffffffffffffffffffff", "medfayda", "medfayda-api")
		require.NoError(t, err)
		tok := issue(t, other, doctor()).Token
		_, err = newIssuer(t, issuedAt.Add(48*time.Hour)).Verify(tok)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other, err := NewIssuer(testKey, "medfayda", "someone-else")
		require.NoError(t, err)
		_, err = i.Verify(issue(t, other, doctor()).Token)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func Test_VerifyRejectsAlgorithmConfusion(t *testing.T) {
	i := newIssuer(t, issuedAt)
	claims := Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.NewPrincipalID().String(),
			Issuer:    "medfayda",
			Audience:  jwt.ClaimStrings{"medfayda-api"},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
	}

	t.Run("HS512", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testKey))
		require.NoError(t, err)
		_, err = i.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("none", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = i.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func Test_VerifyRejectsUnknownRole(t *testing.T) {
	i := newIssuer(t, issuedAt)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.NewPrincipalID().String(),
			Issuer:    "medfayda",
			Audience:  jwt.ClaimStrings{"medfayda-api"},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		},
	}).SignedString([]byte(testKey))
	require.NoError(t, err)

	_, err = i.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func Test_NewIssuerRejectsShortKey(t *testing.T) {
	_, err := NewIssuer("short", "medfayda", "medfayda-api")
	assert.Error(t, err)
}

func Test_IssueHonorsTTL(t *testing.T) {
	i, err := NewIssuer(testKey, "medfayda", "medfayda-api", WithTTL(time.Hour))
	require.NoError(t, err)
	cred := issue(t, i, doctor())
	assert.Equal(t, issuedAt.Add(time.Hour), cred.ExpiresAt)
}
