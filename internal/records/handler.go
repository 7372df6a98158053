package records

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"medfayda/internal/access"
	id "medfayda/pkg/domain"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/httputil"
	"medfayda/pkg/platform/middleware/auditlog"
	"medfayda/pkg/requestcontext"
	"medfayda/pkg/validation"
)

// Route parameter names shared by the router, the gate and the audit log.
const (
	ParamPatientID = "patientID"
	ParamRecordID  = "recordID"
)

// Handler serves the guarded record routes.
type Handler struct {
	svc    *Service
	gate   *access.Gate
	audit  *auditlog.Middleware
	logger *slog.Logger
}

func NewHandler(svc *Service, gate *access.Gate, audit *auditlog.Middleware, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, gate: gate, audit: audit, logger: logger}
}

// Register mounts the record routes. Each route runs the audit middleware
// first, then authn, then the gate, so rejected credentials and denials are
// recorded too. authn must place the verified principal in the context.
func (h *Handler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	guard := func(action id.Action, resourceType access.ResourceType, withRecord, gated bool) chi.Router {
		mws := []func(http.Handler) http.Handler{h.audited(action, resourceType, withRecord), authn}
		if gated {
			owner, resource := ParamPatientID, ""
			if resourceType == access.ResourcePatient {
				owner = ""
			}
			if withRecord {
				resource = ParamRecordID
			}
			mws = append(mws, h.gate.Require(action, resourceType, owner, resource))
		}
		return r.With(mws...)
	}

	guard(id.ActionSearchPatient, access.ResourcePatient, false, true).Get("/patients/search", h.HandleSearch)

	base := "/patients/{" + ParamPatientID + "}"
	one := base + "/records/{" + ParamRecordID + "}"
	guard(id.ActionViewRecord, access.ResourceRecord, false, true).Get(base+"/records", h.HandleList)
	guard(id.ActionViewRecord, access.ResourceRecord, true, true).Get(one, h.HandleGet)
	guard(id.ActionExportData, access.ResourceExport, false, true).Get(base+"/export", h.HandleExport)

	// Writes are authorized by the service once the record kind is known.
	guard(id.ActionCreateRecord, access.ResourceRecord, false, false).Post(base+"/records", h.HandleCreate)
	guard(id.ActionUpdateRecord, access.ResourceRecord, true, false).Put(one, h.HandleUpdate)
	guard(id.ActionDeleteRecord, access.ResourceRecord, true, false).Delete(one, h.HandleDelete)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID, ok := h.patientID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.List(ctx, patientID)
	if err != nil {
		h.fail(ctx, w, "list records failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID, ok := h.patientID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Get(ctx, patientID, recordID)
	if err != nil {
		h.fail(ctx, w, "get record failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	patientID, ok := h.patientID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateRecordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.svc.Create(ctx, actor, patientID, req)
	if err != nil {
		h.fail(ctx, w, "create record failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	patientID, ok := h.patientID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateRecordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.svc.Update(ctx, actor, patientID, recordID, req)
	if err != nil {
		h.fail(ctx, w, "update record failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	patientID, ok := h.patientID(w, r)
	if !ok {
		return
	}
	recordID, ok := h.recordID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(ctx, actor, patientID, recordID); err != nil {
		h.fail(ctx, w, "delete record failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearch implements GET /patients/search?fin=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fin := strings.TrimSpace(r.URL.Query().Get("fin"))
	switch {
	case fin == "":
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "fin is required"))
		return
	case !validation.IsFIN(fin):
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "fin must be 10 to 15 letters or digits"))
		return
	}
	res, err := h.svc.SearchByFIN(ctx, fin)
	if err != nil {
		h.fail(ctx, w, "patient search failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID, ok := h.patientID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Export(ctx, patientID)
	if err != nil {
		h.fail(ctx, w, "export failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (requestcontext.Principal, bool) {
	p, ok := requestcontext.PrincipalFrom(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
	}
	return p, ok
}

func (h *Handler) patientID(w http.ResponseWriter, r *http.Request) (id.PrincipalID, bool) {
	pid, err := id.ParsePrincipalID(chi.URLParam(r, ParamPatientID))
	if err != nil {
		httputil.WriteError(w, err)
		return id.PrincipalID{}, false
	}
	return pid, true
}

func (h *Handler) recordID(w http.ResponseWriter, r *http.Request) (id.RecordID, bool) {
	rid, err := id.ParseRecordID(chi.URLParam(r, ParamRecordID))
	if err != nil {
		httputil.WriteError(w, err)
		return id.RecordID{}, false
	}
	return rid, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
