package access

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"medfayda/internal/auth/metrics"
	id "medfayda/pkg/domain"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/httputil"
	"medfayda/pkg/requestcontext"
)

type GateSuite struct {
	suite.Suite
	gate    *Gate
	metrics *metrics.Metrics
	ctx     context.Context
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.gate = NewGate(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithMetrics(s.metrics))
	s.ctx = context.Background()
}

func principal(role id.Role) requestcontext.Principal {
	return requestcontext.Principal{ID: id.NewPrincipalID(), Role: role}
}

func (s *GateSuite) TestClinicalRolesReachAnyPatient() {
	record := Resource{Type: ResourceRecord, ID: "r-1", OwnerID: id.NewPrincipalID()}
	for _, role := range []id.Role{id.RoleAdmin, id.RoleDoctor, id.RoleNurse, id.RoleLabTechnician} {
		s.NoError(s.gate.Authorize(s.ctx, principal(role), id.ActionViewRecord, record), role)
	}
}

func (s *GateSuite) TestPatientOwnership() {
	patient := principal(id.RolePatient)
	own := Resource{Type: ResourceRecord, OwnerID: patient.ID}
	other := Resource{Type: ResourceRecord, OwnerID: id.NewPrincipalID()}

	s.NoError(s.gate.Authorize(s.ctx, patient, id.ActionViewRecord, own))
	s.NoError(s.gate.Authorize(s.ctx, patient, id.ActionExportData, Resource{Type: ResourceExport, OwnerID: patient.ID}))

	for _, action := range []id.Action{id.ActionViewRecord, id.ActionExportData, id.ActionUpdateRecord, id.ActionDeleteRecord} {
		err := s.gate.Authorize(s.ctx, patient, action, other)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden), action)
	}

	s.Run("unowned resources are never a patient's", func() {
		err := s.gate.Authorize(s.ctx, patient, id.ActionSystemAccess, Resource{Type: ResourceSystem})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("patients cannot edit their own clinical record", func() {
		err := s.gate.Authorize(s.ctx, patient, id.ActionUpdateRecord, own)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *GateSuite) TestProfessionalScope() {
	owner := id.NewPrincipalID()
	record := Resource{Type: ResourceRecord, OwnerID: owner}
	lab := Resource{Type: ResourceLabResult, OwnerID: owner}

	cases := []struct {
		name    string
		role    id.Role
		action  id.Action
		res     Resource
		allowed bool
	}{
		{"nurse cannot delete", id.RoleNurse, id.ActionDeleteRecord, record, false},
		{"nurse updates", id.RoleNurse, id.ActionUpdateRecord, record, true},
		{"doctor deletes", id.RoleDoctor, id.ActionDeleteRecord, record, true},
		{"lab tech writes lab results", id.RoleLabTechnician, id.ActionCreateRecord, lab, true},
		{"lab tech cannot write clinical notes", id.RoleLabTechnician, id.ActionUpdateRecord, record, false},
		{"lab tech cannot export", id.RoleLabTechnician, id.ActionExportData, record, false},
		{"receptionist searches", id.RoleReceptionist, id.ActionSearchPatient, Resource{Type: ResourcePatient}, true},
		{"receptionist never reads records", id.RoleReceptionist, id.ActionViewRecord, record, false},
		{"patient cannot search", id.RolePatient, id.ActionSearchPatient, Resource{Type: ResourcePatient}, false},
		{"admin exports", id.RoleAdmin, id.ActionExportData, Resource{Type: ResourceExport, OwnerID: owner}, true},
		{"admin manages principals", id.RoleAdmin, id.ActionSystemAccess, Resource{Type: ResourcePrincipal, ID: owner.String()}, true},
		{"doctor cannot manage principals", id.RoleDoctor, id.ActionSystemAccess, Resource{Type: ResourcePrincipal, ID: owner.String()}, false},
		{"receptionist cannot manage principals", id.RoleReceptionist, id.ActionSystemAccess, Resource{Type: ResourcePrincipal}, false},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			err := s.gate.Authorize(s.ctx, principal(tc.role), tc.action, tc.res)
			if tc.allowed {
				s.NoError(err)
			} else {
				s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
			}
		})
	}
}

func (s *GateSuite) TestUnknownPrincipalIsDenied() {
	err := s.gate.Authorize(s.ctx, requestcontext.Principal{Role: id.RoleAdmin}, id.ActionViewRecord, Resource{Type: ResourceRecord})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = s.gate.Authorize(s.ctx, requestcontext.Principal{ID: id.NewPrincipalID(), Role: "root"}, id.ActionViewRecord, Resource{Type: ResourceRecord})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *GateSuite) TestDenialsAreCounted() {
	patient := principal(id.RolePatient)
	_ = s.gate.Authorize(s.ctx, patient, id.ActionViewRecord, Resource{Type: ResourceRecord, OwnerID: id.NewPrincipalID()})
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AccessDenied.WithLabelValues("patient", "view_record")))
}

func TestRequireMiddleware(t *testing.T) {
	gate := NewGate(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	doctor := principal(id.RoleDoctor)
	patient := principal(id.RolePatient)

	router := chi.NewRouter()
	router.With(gate.Require(id.ActionViewRecord, ResourceRecord, "patientID", "recordID")).
		Get("/patients/{patientID}/records/{recordID}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	do := func(p *requestcontext.Principal, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if p != nil {
			req = req.WithContext(requestcontext.WithPrincipal(req.Context(), *p))
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}
	kind := func(w *httptest.ResponseRecorder) string {
		var body httputil.ErrorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body.Error
	}

	otherPatient := id.NewPrincipalID()

	assert.Equal(t, http.StatusOK, do(&doctor, "/patients/"+otherPatient.String()+"/records/r-1").Code)
	assert.Equal(t, http.StatusOK, do(&patient, "/patients/"+patient.ID.String()+"/records/r-1").Code)

	w := do(&patient, "/patients/"+otherPatient.String()+"/records/r-1")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", kind(w))

	w = do(nil, "/patients/"+otherPatient.String()+"/records/r-1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", kind(w))

	w = do(&doctor, "/patients/not-a-uuid/records/r-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
