// Package auditlog records an audit entry for every request that passes
// through a guarded or login route, whatever its outcome.
package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "medfayda/pkg/domain"
	"medfayda/pkg/platform/audit"
	"medfayda/pkg/requestcontext"
)

const (
	// MaxCapturedBody bounds how much of a request body is inspected.
	MaxCapturedBody = 64 << 10
	// maxCapturedError bounds how much of an error response is buffered.
	maxCapturedError = 4 << 10
)

// Emitter accepts records without blocking; the audit publisher satisfies it.
type Emitter interface {
	Emit(ctx context.Context, r audit.Record) error
}

// Route describes what a route does for the audit trail. SubjectParam and
// ResourceParam name chi URL parameters.
type Route struct {
	Action        id.Action
	ResourceType  string
	SubjectParam  string
	ResourceParam string
}

// Middleware builds audit records around handlers.
type Middleware struct {
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

// WithClock overrides the clock used for timestamps and latency.
func WithClock(now func() time.Time) Option {
	return func(m *Middleware) { m.now = now }
}

func New(emitter Emitter, opts ...Option) *Middleware {
	m := &Middleware{emitter: emitter, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record wraps next so that one record is emitted after it returns, or while
// it panics; the panic keeps unwinding to the recovery middleware, which
// answers 500. The response is never delayed by, or changed because of, the
// audit trail.
func (m *Middleware) Record(route Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := m.now()
			body := captureBody(r)
			ctx := requestcontext.WithPrincipalSlot(r.Context())
			rw := &recorder{ResponseWriter: w, status: http.StatusOK}

			completed := false
			defer func() {
				if !completed {
					rw.status = http.StatusInternalServerError
				}
				m.emit(ctx, m.build(ctx, r, route, rw, body, start))
			}()

			next.ServeHTTP(rw, r.WithContext(ctx))
			completed = true
		})
	}
}

func (m *Middleware) emit(ctx context.Context, rec audit.Record) {
	if err := m.emitter.Emit(context.WithoutCancel(ctx), rec); err != nil {
		m.logger.WarnContext(ctx, "audit record not queued",
			"error", err,
			"action", rec.Action,
			"request_id", rec.RequestID,
		)
	}
}

func (m *Middleware) build(ctx context.Context, r *http.Request, route Route, rw *recorder, body []byte, start time.Time) audit.Record {
	end := m.now()
	rec := audit.Record{
		ID:           audit.NewID(end),
		Timestamp:    end,
		ActorID:      audit.AnonymousActor,
		ActorRole:    audit.UnknownRole,
		Action:       route.Action,
		ResourceType: route.ResourceType,
		ClientIP:     requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		RequestID:    requestcontext.RequestID(ctx),
		Detail: audit.Detail{
			Method:      r.Method,
			Path:        r.URL.Path,
			Status:      rw.status,
			LatencyMS:   end.Sub(start).Milliseconds(),
			RequestBody: audit.RedactJSON(body),
			Query:       audit.RedactQuery(r.URL.Query()),
			Device:      requestcontext.Device(ctx),
		},
		Success: audit.SuccessFromStatus(rw.status),
	}

	if p, ok := actor(ctx); ok {
		rec.ActorID = p.ID.String()
		rec.ActorRole = p.Role.String()
		rec.FacilityID = string(p.FacilityID)
	}
	if route.SubjectParam != "" {
		rec.SubjectPatientID = chi.URLParam(r, route.SubjectParam)
	}
	if route.ResourceParam != "" {
		rec.ResourceID = chi.URLParam(r, route.ResourceParam)
	}
	if !rec.Success {
		rec.ErrorMessage = errorMessage(rw)
	}
	return rec
}

func actor(ctx context.Context) (requestcontext.Principal, bool) {
	if p, ok := requestcontext.PrincipalFrom(ctx); ok {
		return p, true
	}
	return requestcontext.ReportedPrincipal(ctx)
}

// captureBody reads up to MaxCapturedBody bytes and restores the body so the
// handler still sees all of it.
func captureBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, MaxCapturedBody))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	if err != nil {
		return nil
	}
	return buf
}

type readCloser struct {
	io.Reader
	io.Closer
}

func errorMessage(rw *recorder) string {
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(rw.errBody.Bytes(), &body); err == nil {
		if body.ErrorDescription != "" {
			return body.ErrorDescription
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return http.StatusText(rw.status)
}

// recorder captures the status and the start of an error response.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	errBody     bytes.Buffer
}

func (w *recorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recorder) Write(b []byte) (int, error) {
	w.wroteHeader = true
	if w.status >= http.StatusBadRequest {
		if room := maxCapturedError - w.errBody.Len(); room > 0 {
			w.errBody.Write(b[:min(room, len(b))])
		}
	}
	return w.ResponseWriter.Write(b)
}

func (w *recorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }
