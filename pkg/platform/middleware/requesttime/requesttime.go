// Package requesttime pins one "now" per request so session issuance, access
// checks and the audit record of that request agree on time.
package requesttime

import (
	"context"
	"net/http"
	"time"
)

type contextKeyRequestTime struct{}

// Middleware stamps each request with time.Now().
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock returns a middleware that stamps each request using clock.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithTime(r.Context(), clock())))
		})
	}
}

// Now returns the request-scoped time, or time.Now() outside a request.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyRequestTime{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// Since reports how long ago the request started.
func Since(ctx context.Context) time.Duration {
	return time.Since(Now(ctx))
}

// WithTime injects a specific time into ctx. Workers and tests use it directly.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKeyRequestTime{}, t)
}
