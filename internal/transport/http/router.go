// Package httptransport assembles the chi router: the shared middleware stack,
// operational endpoints and the auth and record surfaces.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	authhandler "medfayda/internal/auth/handler"
	"medfayda/internal/platform/health"
	"medfayda/internal/records"
	"medfayda/pkg/platform/middleware/device"
	"medfayda/pkg/platform/middleware/metadata"
	"medfayda/pkg/platform/middleware/request"
	"medfayda/pkg/platform/middleware/requesttime"
)

// Dependencies are the handlers and middleware the router mounts. Nil
// handlers are skipped.
type Dependencies struct {
	Logger   *slog.Logger
	Metadata *metadata.Middleware
	Latency  *request.Metrics
	// BodyLimit caps request bodies; zero uses request.DefaultBodyLimit.
	BodyLimit int64

	Health  *health.Handler
	Metrics http.Handler

	Auth    *authhandler.Handler
	Records *records.Handler
	// Authn verifies the bearer credential and stores the principal.
	Authn func(http.Handler) http.Handler
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(d Dependencies) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := d.BodyLimit
	if limit <= 0 {
		limit = request.DefaultBodyLimit
	}
	meta := d.Metadata
	if meta == nil {
		meta = metadata.NewMiddleware(nil)
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(meta.Handler)
	r.Use(device.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(logger))
	if d.Latency != nil {
		r.Use(request.LatencyMiddleware(d.Latency))
	}
	r.Use(request.BodyLimit(limit))
	r.Use(request.ContentTypeJSON)

	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	if d.Auth != nil {
		d.Auth.Register(r)
		d.Auth.RegisterProtected(r, d.Authn)
	}
	if d.Records != nil {
		d.Records.Register(r, d.Authn)
	}
	return r
}
