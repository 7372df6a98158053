// Package access decides whether an authenticated principal may perform an
// action on a resource. Decisions are made fresh for every request.
package access

import (
	"context"
	"log/slog"

	"medfayda/internal/auth/metrics"
	id "medfayda/pkg/domain"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/requestcontext"
)

// ResourceType names what an action targets.
type ResourceType string

const (
	ResourceRecord    ResourceType = "medical_record"
	ResourceLabResult ResourceType = "lab_result"
	ResourcePatient   ResourceType = "patient"
	ResourceExport    ResourceType = "export"
	ResourceSystem    ResourceType = "system"
	// ResourcePrincipal is an account managed by administrators.
	ResourcePrincipal ResourceType = "principal"
)

// Resource is the target of an action. OwnerID is the patient the resource
// belongs to; it is nil for resources that no single patient owns.
type Resource struct {
	Type    ResourceType
	ID      string
	OwnerID id.PrincipalID
}

// permissions lists what each role may do in its professional scope.
var permissions = map[id.Role]map[id.Action]bool{
	id.RoleAdmin: {
		id.ActionViewRecord: true, id.ActionCreateRecord: true, id.ActionUpdateRecord: true,
		id.ActionDeleteRecord: true, id.ActionSearchPatient: true, id.ActionExportData: true,
		id.ActionSystemAccess: true,
	},
	id.RoleDoctor: {
		id.ActionViewRecord: true, id.ActionCreateRecord: true, id.ActionUpdateRecord: true,
		id.ActionDeleteRecord: true, id.ActionSearchPatient: true, id.ActionExportData: true,
		id.ActionSystemAccess: true,
	},
	id.RoleNurse: {
		id.ActionViewRecord: true, id.ActionCreateRecord: true, id.ActionUpdateRecord: true,
		id.ActionSearchPatient: true, id.ActionExportData: true, id.ActionSystemAccess: true,
	},
	id.RoleLabTechnician: {
		id.ActionViewRecord: true, id.ActionCreateRecord: true, id.ActionUpdateRecord: true,
		id.ActionSearchPatient: true, id.ActionSystemAccess: true,
	},
	id.RoleReceptionist: {
		id.ActionSearchPatient: true, id.ActionSystemAccess: true,
	},
	id.RolePatient: {
		id.ActionViewRecord: true, id.ActionExportData: true, id.ActionSystemAccess: true,
	},
}

// Gate applies role and ownership rules.
type Gate struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func NewGate(opts ...Option) *Gate {
	g := &Gate{logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize returns nil when p may perform action on res, otherwise a
// forbidden domain error. A patient may act only on resources whose owner is
// the patient; clinical roles may act on any patient's resources within
// their permission set. Only administrators manage principals.
func (g *Gate) Authorize(ctx context.Context, p requestcontext.Principal, action id.Action, res Resource) error {
	if reason := decide(p, action, res); reason != "" {
		g.logger.WarnContext(ctx, "access denied",
			"principal_id", p.ID.String(),
			"role", p.Role.String(),
			"action", action.String(),
			"resource_type", string(res.Type),
			"resource_id", res.ID,
			"reason", reason,
			"request_id", requestcontext.RequestID(ctx),
		)
		if g.metrics != nil {
			g.metrics.IncAccessDenied(p.Role.String(), action.String())
		}
		return dErrors.New(dErrors.CodeForbidden, "access to this resource is not permitted")
	}
	return nil
}

// decide returns the denial reason, or "" when allowed.
func decide(p requestcontext.Principal, action id.Action, res Resource) string {
	if p.ID.IsNil() || !p.Role.Valid() {
		return "unknown_principal"
	}
	if !permissions[p.Role][action] {
		return "action_not_permitted"
	}
	if res.Type == ResourcePrincipal && p.Role != id.RoleAdmin {
		return "admin_only"
	}
	switch p.Role {
	case id.RolePatient:
		if res.OwnerID.IsNil() || res.OwnerID != p.ID {
			return "not_owner"
		}
	case id.RoleLabTechnician:
		if writes(action) && res.Type != ResourceLabResult {
			return "outside_lab_scope"
		}
	case id.RoleReceptionist:
		if res.Type == ResourceRecord || res.Type == ResourceLabResult {
			return "clinical_record"
		}
	}
	return ""
}

func writes(a id.Action) bool {
	return a == id.ActionCreateRecord || a == id.ActionUpdateRecord || a == id.ActionDeleteRecord
}
