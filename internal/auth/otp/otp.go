// Package otp implements the local SMS one-time code fallback: code
// generation, hashed storage, attempt counting and send throttling.
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// CodeLength is the number of decimal digits in a one-time code.
	CodeLength = 6
	// DefaultTTL bounds how long a verification session stays open.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxAttempts is the number of wrong codes tolerated per session.
	DefaultMaxAttempts = 3

	sessionIDPrefix = "sms-"
)

// ErrCodeMismatch is returned when a submitted code does not match.
var ErrCodeMismatch = errors.New("code mismatch")

// Challenge is one SMS verification session.
type Challenge struct {
	ID        string
	Phone     string
	CodeHash  []byte
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// Expired reports whether the challenge can no longer be verified at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// NewChallenge generates a code for phone and returns the challenge holding
// its hash together with the plaintext code to deliver.
func NewChallenge(phone string, now time.Time, ttl time.Duration, cost int) (*Challenge, string, error) {
	code, err := GenerateCode()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return nil, "", fmt.Errorf("hash code: %w", err)
	}
	id, err := newSessionID()
	if err != nil {
		return nil, "", err
	}
	return &Challenge{
		ID:        id,
		Phone:     phone,
		CodeHash:  hash,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, code, nil
}

// GenerateCode returns a uniformly random zero-padded decimal code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

func matches(hash []byte, code string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(code)) == nil
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return fmt.Sprintf("%s%x", sessionIDPrefix, b), nil
}
