package models

import (
	"strings"

	"medfayda/pkg/validation"
)

// CallbackRequest carries the provider redirect parameters. Error is set
// when the provider refused the login instead of issuing a code.
type CallbackRequest struct {
	Code             string `json:"code" validate:"required,notblank,max=2048"`
	State            string `json:"state" validate:"required,notblank,max=256"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (r *CallbackRequest) Normalize() {
	r.Code = strings.TrimSpace(r.Code)
	r.State = strings.TrimSpace(r.State)
	r.Error = strings.TrimSpace(r.Error)
}

func (r *CallbackRequest) Validate() error { return validation.Validate(r) }

// SendCodeRequest starts an SMS verification session.
type SendCodeRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,e164"`
}

func (r *SendCodeRequest) Normalize() {
	r.PhoneNumber = NormalizePhone(r.PhoneNumber)
}

func (r *SendCodeRequest) Validate() error { return validation.Validate(r) }

// VerifyCodeRequest completes an SMS verification session.
type VerifyCodeRequest struct {
	VerificationSessionID string `json:"verificationSessionId" validate:"required,notblank,max=64"`
	Code                  string `json:"code" validate:"required,numeric,len=6"`
}

func (r *VerifyCodeRequest) Normalize() {
	r.VerificationSessionID = strings.TrimSpace(r.VerificationSessionID)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *VerifyCodeRequest) Validate() error { return validation.Validate(r) }

// NormalizePhone strips formatting characters and rewrites local Ethiopian
// numbers (09xxxxxxxx) into E.164 form.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	p := b.String()
	switch {
	case strings.HasPrefix(p, "+"):
		return p
	case strings.HasPrefix(p, "251"):
		return "+" + p
	case strings.HasPrefix(p, "0") && len(p) == 10:
		return "+251" + p[1:]
	default:
		return p
	}
}
