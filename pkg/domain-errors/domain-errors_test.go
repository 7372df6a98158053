package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite covers the error primitives every trust boundary relies on:
// wrapped domain errors keep their original code and errors.Is matches by code.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorString() {
	s.Run("message wins over code", func() {
		err := &Error{Code: CodeInvalidState, Message: "login attempt is no longer valid"}
		s.Equal("login attempt is no longer valid", err.Error())
	})

	s.Run("falls back to code", func() {
		err := &Error{Code: CodeNoToken}
		s.Equal("no_token", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	s.Run("same code different message", func() {
		a := &Error{Code: CodeExpiredCredential, Message: "a"}
		b := &Error{Code: CodeExpiredCredential, Message: "b"}
		s.True(errors.Is(a, b))
	})

	s.Run("different codes", func() {
		s.False(errors.Is(New(CodeExpiredCredential, ""), New(CodeInvalidCredential, "")))
	})

	s.Run("plain errors never match", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not_found")))
	})

	s.Run("through fmt wrapping", func() {
		err := fmt.Errorf("callback: %w", New(CodeTokenExchangeFailed, "exchange failed"))
		s.True(errors.Is(err, &Error{Code: CodeTokenExchangeFailed}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("keeps the original domain code", func() {
		wrapped := Wrap(New(CodeInvalidIdentityToken, "nonce mismatch"), CodeInternal, "callback failed")

		var domainErr *Error
		s.Require().True(errors.As(wrapped, &domainErr))
		s.Equal(CodeInvalidIdentityToken, domainErr.Code)
		s.Equal("callback failed", domainErr.Message)
	})

	s.Run("applies the given code to plain errors", func() {
		root := errors.New("connection refused")
		wrapped := Wrap(root, CodeUnavailable, "principal store unavailable")

		s.True(HasCode(wrapped, CodeUnavailable))
		s.True(errors.Is(wrapped, root))
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeTooManyAttempts, CodeOf(New(CodeTooManyAttempts, "")))
	s.Equal(CodeInternal, CodeOf(errors.New("boom")))
	s.False(HasCode(nil, CodeNotFound))
}
