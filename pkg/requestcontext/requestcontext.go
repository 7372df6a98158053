// Package requestcontext carries per-request metadata set by the HTTP
// middleware chain and read by services, the access gate and the audit log.
package requestcontext

import (
	"context"
	"sync"
	"time"

	id "medfayda/pkg/domain"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	ID         id.PrincipalID
	Role       id.Role
	FacilityID id.FacilityID
	ExpiresAt  time.Time
	TokenID    string
}

type (
	principalKey struct{}
	requestIDKey struct{}
	clientIPKey  struct{}
	userAgentKey struct{}
	deviceKey    struct{}
	slotKey      struct{}
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request correlation id, or "" outside a request.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithClientMetadata stores the resolved client IP and raw User-Agent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey{}).(string)
	return v
}

func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey{}).(string)
	return v
}

// WithDevice stores a short human readable device summary such as
// "chrome 120 on android (mobile)".
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceKey{}, device)
}

func Device(ctx context.Context) string {
	v, _ := ctx.Value(deviceKey{}).(string)
	return v
}

// WithPrincipal stores the authenticated caller. It also reports p to an
// enclosing principal slot, if one was installed.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ReportPrincipal(ctx, p)
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// principalSlot lets an outer middleware learn the principal that an inner
// handler established, since contexts only flow inward.
type principalSlot struct {
	mu sync.Mutex
	p  *Principal
}

// WithPrincipalSlot installs an empty slot for ReportPrincipal to fill.
func WithPrincipalSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, slotKey{}, &principalSlot{})
}

// ReportPrincipal records p in the enclosing slot without changing ctx.
// Login handlers use it to name the principal that just signed in.
func ReportPrincipal(ctx context.Context, p Principal) {
	slot, ok := ctx.Value(slotKey{}).(*principalSlot)
	if !ok {
		return
	}
	slot.mu.Lock()
	slot.p = &p
	slot.mu.Unlock()
}

// ReportedPrincipal returns the principal last reported to the slot in ctx.
func ReportedPrincipal(ctx context.Context) (Principal, bool) {
	slot, ok := ctx.Value(slotKey{}).(*principalSlot)
	if !ok {
		return Principal{}, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.p == nil {
		return Principal{}, false
	}
	return *slot.p, true
}
