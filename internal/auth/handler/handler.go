package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medfayda/internal/access"
	"medfayda/internal/auth/models"
	id "medfayda/pkg/domain"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/httputil"
	"medfayda/pkg/platform/middleware/auditlog"
	"medfayda/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/auth-mocks.go -package=mocks Service

// Service defines the login and session operations behind the auth routes.
type Service interface {
	Initiate(ctx context.Context) (*models.InitiateResult, error)
	HandleCallback(ctx context.Context, req *models.CallbackRequest) (*models.LoginResult, error)
	SendCode(ctx context.Context, req *models.SendCodeRequest) (*models.SendCodeResult, error)
	VerifyCode(ctx context.Context, req *models.VerifyCodeRequest) (*models.LoginResult, error)
	Me(ctx context.Context, principalID id.PrincipalID) (*models.PrincipalSummary, error)
	Logout(ctx context.Context, principalID id.PrincipalID) *models.LogoutResult
	Deactivate(ctx context.Context, actor, target id.PrincipalID) (*models.PrincipalSummary, error)
	LocalLoginEnabled() bool
}

// ParamPrincipalID names the target principal on administration routes.
const ParamPrincipalID = "principalID"

// Handler serves federated login, the SMS fallback and session introspection.
type Handler struct {
	auth   Service
	logger *slog.Logger
	audit  *auditlog.Middleware
	gate   *access.Gate
}

type Option func(*Handler)

// WithAudit records login and logout outcomes.
func WithAudit(m *auditlog.Middleware) Option {
	return func(h *Handler) { h.audit = m }
}

// WithGate enables the principal administration routes.
func WithGate(g *access.Gate) Option {
	return func(h *Handler) { h.gate = g }
}

// New creates a new auth Handler with the given service and logger.
func New(auth Service, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{auth: auth, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the unauthenticated login routes. Completed logins are
// audited; initiation and code delivery are not.
func (h *Handler) Register(r chi.Router) {
	login := h.audited(id.ActionLogin)
	r.Get("/auth/fayda/login", h.HandleLogin)
	r.With(login).Get("/auth/fayda/callback", h.HandleCallback)
	r.With(login).Post("/auth/fayda/callback", h.HandleCallback)
	r.Post("/auth/sms/send-code", h.HandleSendCode)
	r.With(login).Post("/auth/sms/verify-code", h.HandleVerifyCode)
}

// RegisterProtected registers routes that need an authenticated principal.
// authn runs inside the audit middleware so rejected logouts are recorded.
func (h *Handler) RegisterProtected(r chi.Router, authn func(http.Handler) http.Handler) {
	r.With(authn).Get("/auth/me", h.HandleMe)
	r.With(h.audited(id.ActionLogout), authn).Post("/auth/logout", h.HandleLogout)

	if h.gate != nil {
		r.With(
			h.auditedRoute(auditlog.Route{
				Action:        id.ActionSystemAccess,
				ResourceType:  string(access.ResourcePrincipal),
				ResourceParam: ParamPrincipalID,
			}),
			authn,
			h.gate.Require(id.ActionSystemAccess, access.ResourcePrincipal, "", ParamPrincipalID),
		).Post("/admin/principals/{"+ParamPrincipalID+"}/deactivate", h.HandleDeactivate)
	}
}

func (h *Handler) audited(action id.Action) func(http.Handler) http.Handler {
	return h.auditedRoute(auditlog.Route{Action: action, ResourceType: "session"})
}

func (h *Handler) auditedRoute(route auditlog.Route) func(http.Handler) http.Handler {
	if h.audit == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.audit.Record(route)
}

// HandleLogin implements GET /auth/fayda/login.
//
// Output: { "authorizationUrl": "https://...", "state": "..." }
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	res, err := h.auth.Initiate(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "login initiation failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleCallback completes a federated login. The provider redirect arrives
// as GET with query parameters; browser clients may relay it as a JSON POST.
// Validation is left to the service so the state is consumed before anything
// else about the request is judged.
//
// Input: { "code": "...", "state": "..." }
// Output: { "sessionToken": "...", "principal": {...}, ... }
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req *models.CallbackRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req = &models.CallbackRequest{
			Code:             q.Get("code"),
			State:            q.Get("state"),
			Error:            q.Get("error"),
			ErrorDescription: q.Get("error_description"),
		}
	} else {
		var ok bool
		req, ok = httputil.DecodeJSON[models.CallbackRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
	}

	res, err := h.auth.HandleCallback(ctx, req)
	if err != nil {
		h.logFailure(ctx, "callback failed", err, requestID)
		httputil.WriteError(w, err)
		return
	}
	h.reportLogin(ctx, res)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleSendCode implements POST /auth/sms/send-code.
//
// Input: { "phoneNumber": "+2519..." }
// Output: { "verificationSessionId": "...", "expiresAt": "..." }
func (h *Handler) HandleSendCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if !h.auth.LocalLoginEnabled() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeDisabled, "local login is not enabled"))
		return
	}

	req, ok := httputil.DecodeJSON[models.SendCodeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.auth.SendCode(ctx, req)
	if err != nil {
		h.logFailure(ctx, "send code failed", err, requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleVerifyCode implements POST /auth/sms/verify-code.
//
// Input: { "verificationSessionId": "...", "code": "123456" }
// Output: { "sessionToken": "...", "principal": {...}, ... }
func (h *Handler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if !h.auth.LocalLoginEnabled() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeDisabled, "local login is not enabled"))
		return
	}

	req, ok := httputil.DecodeJSON[models.VerifyCodeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.auth.VerifyCode(ctx, req)
	if err != nil {
		h.logFailure(ctx, "verify code failed", err, requestID)
		httputil.WriteError(w, err)
		return
	}
	h.reportLogin(ctx, res)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleMe returns the caller's principal summary.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	principal, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}

	res, err := h.auth.Me(ctx, principal.ID)
	if err != nil {
		h.logFailure(ctx, "me lookup failed", err, requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleLogout ends the caller's session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.auth.Logout(ctx, principal.ID))
}

// HandleDeactivate implements POST /admin/principals/{principalID}/deactivate.
//
// Output: the target's principal summary with "active": false.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return
	}
	target, err := id.ParsePrincipalID(chi.URLParam(r, ParamPrincipalID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.auth.Deactivate(ctx, actor.ID, target)
	if err != nil {
		h.logFailure(ctx, "deactivate principal failed", err, requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// reportLogin names the freshly authenticated principal to the audit layer,
// which wraps this handler and never sees a bearer token on login requests.
func (h *Handler) reportLogin(ctx context.Context, res *models.LoginResult) {
	principalID, err := id.ParsePrincipalID(res.Principal.ID)
	if err != nil {
		return
	}
	role, _ := id.ParseRole(res.Principal.Role)
	requestcontext.ReportPrincipal(ctx, requestcontext.Principal{
		ID:         principalID,
		Role:       role,
		FacilityID: id.FacilityID(res.Principal.FacilityID),
		ExpiresAt:  res.ExpiresAt,
	})
}

// logFailure logs client-caused failures as warnings and the rest as errors.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, requestID string) {
	if httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestID)
		return
	}
	h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestID)
}
