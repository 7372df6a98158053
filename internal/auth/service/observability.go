package service

import (
	"context"

	"medfayda/internal/auth/models"
	"medfayda/internal/platform/tracer"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/requestcontext"
)

// loginFailure logs a failed login step and counts it by error kind.
// Internal failures log at error level; rejected input logs as a warning.
func (s *Service) loginFailure(ctx context.Context, method models.LoginMethod, reason string, err error, attributes ...any) {
	kind := dErrors.CodeOf(err)
	args := append(attributes,
		"event", "login_failed",
		"method", string(method),
		"reason", reason,
		"kind", string(kind),
		"error", err,
	)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if kind == dErrors.CodeInternal || kind == dErrors.CodeUnavailable {
		s.logger.ErrorContext(ctx, "login failed", args...)
	} else {
		s.logger.WarnContext(ctx, "login failed", args...)
	}
	if s.metrics != nil {
		s.metrics.IncLoginFailure(string(method), string(kind))
	}
}

func (s *Service) loginCompleted(ctx context.Context, method models.LoginMethod, p *models.Principal, created bool) {
	s.logger.InfoContext(ctx, "login completed",
		"event", "login_completed",
		"method", string(method),
		"principal_id", p.ID.String(),
		"subject_hash", tracer.HashSubject(p.ExternalSubject),
		"role", p.Role.String(),
		"created", created,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncLoginCompleted(string(method))
		s.metrics.IncSessionsIssued()
	}
}

func (s *Service) incPrincipalsCreated() {
	if s.metrics != nil {
		s.metrics.IncPrincipalsCreated()
	}
}

func (s *Service) incCodesSent() {
	if s.metrics != nil {
		s.metrics.IncCodesSent()
	}
}

func (s *Service) incCodeVerification(outcome string) {
	if s.metrics != nil {
		s.metrics.IncCodeVerification(outcome)
	}
}
