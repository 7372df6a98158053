// Package tracer is a small tracing facade over OpenTelemetry. Identity
// provider calls and login flows emit spans through it; tests use NoopTracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute    { return Attribute{Key: key, Value: value} }
func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }
func Int(key string, value int) Attribute   { return Attribute{Key: key, Value: value} }

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSubject returns a short SHA-256 prefix of an identifier so spans can be
// correlated without carrying FINs or phone numbers.
func HashSubject(subject string) string {
	if subject == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:8])
}

// Span names.
const (
	SpanLoginInitiate = "auth.login.initiate"
	SpanLoginCallback = "auth.login.callback"
	SpanTokenExchange = "auth.provider.token_exchange"
	SpanIDTokenVerify = "auth.provider.id_token_verify"
	SpanUserInfo      = "auth.provider.userinfo"
	SpanJWKSRefresh   = "auth.provider.jwks_refresh"
	SpanSMSSendCode   = "auth.sms.send_code"
	SpanSMSVerifyCode = "auth.sms.verify_code"
)

// Attribute keys.
const (
	AttrSubjectHash = "subject.hash"
	AttrAttempt     = "attempt"
	AttrStatusCode  = "http.status_code"
	AttrCreated     = "principal.created"
	AttrRole        = "principal.role"
)
