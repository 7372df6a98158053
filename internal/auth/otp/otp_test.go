package otp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"medfayda/internal/sentinel"
)

type StoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = NewInMemoryStore(DefaultMaxAttempts)
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) newChallenge() (*Challenge, string) {
	c, code, err := NewChallenge("+251911223344", s.now, DefaultTTL, bcrypt.MinCost)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), c))
	return c, code
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func (s *StoreSuite) TestCorrectCodeConsumesSession() {
	c, code := s.newChallenge()

	got, err := s.store.Verify(context.Background(), c.ID, code, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal("+251911223344", got.Phone)

	_, err = s.store.Verify(context.Background(), c.ID, code, s.now.Add(time.Minute))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestFourthAttemptIsRejectedEvenWithCorrectCode() {
	ctx := context.Background()
	c, code := s.newChallenge()

	for range DefaultMaxAttempts {
		_, err := s.store.Verify(ctx, c.ID, wrongCode(code), s.now)
		s.ErrorIs(err, ErrCodeMismatch)
	}

	_, err := s.store.Verify(ctx, c.ID, code, s.now)
	s.ErrorIs(err, sentinel.ErrExhausted)

	_, err = s.store.Verify(ctx, c.ID, code, s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestExpiredSession() {
	c, code := s.newChallenge()
	_, err := s.store.Verify(context.Background(), c.ID, code, s.now.Add(DefaultTTL))
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *StoreSuite) TestDeleteExpired() {
	s.newChallenge()
	s.now = s.now.Add(2 * time.Minute)
	fresh, code := s.newChallenge()

	n, err := s.store.DeleteExpired(context.Background(), s.now.Add(4*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.Verify(context.Background(), fresh.ID, code, s.now)
	s.NoError(err)
}

func TestGenerateCode(t *testing.T) {
	for range 50 {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.Empty(t, strings.Trim(code, "0123456789"))
	}
}

func TestNewChallengeNeverStoresPlaintext(t *testing.T) {
	now := time.Now()
	c, code, err := NewChallenge("+251900000000", now, DefaultTTL, bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.ID, "sms-"))
	assert.NotContains(t, string(c.CodeHash), code)
	assert.True(t, matches(c.CodeHash, code))
}

func TestThrottle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	th := NewThrottle(1, 2)

	assert.True(t, th.Allow("+251911000001", now))
	assert.True(t, th.Allow("+251911000001", now))
	assert.False(t, th.Allow("+251911000001", now))
	assert.True(t, th.Allow("+251911000002", now), "phones are throttled independently")
	assert.True(t, th.Allow("+251911000001", now.Add(61*time.Second)))

	assert.Equal(t, 2, th.Prune(now.Add(time.Hour)))

	disabled := NewThrottle(0, 0)
	assert.True(t, disabled.Allow("+251911000001", now))
}
