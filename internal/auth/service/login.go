package service

import (
	"context"
	"errors"

	"medfayda/internal/auth/models"
	"medfayda/internal/sentinel"
	id "medfayda/pkg/domain"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/middleware/requesttime"
)

const (
	tokenTypeBearer = "Bearer"
	defaultRole     = id.RolePatient
)

// completeLogin upserts candidate by its external subject and issues a
// session for the stored principal.
func (s *Service) completeLogin(ctx context.Context, candidate models.Principal, method models.LoginMethod) (*models.LoginResult, error) {
	candidate.ID = id.NewPrincipalID()
	principal, created, err := s.principals.UpsertOnLogin(ctx, &candidate, requesttime.Now(ctx))
	if err != nil {
		s.loginFailure(ctx, method, "principal_upsert_failed", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record principal")
	}
	return s.finishLogin(ctx, principal, created, method)
}

// finishLogin refuses deactivated principals and issues the session.
func (s *Service) finishLogin(ctx context.Context, principal *models.Principal, created bool, method models.LoginMethod) (*models.LoginResult, error) {
	if !principal.Active {
		err := dErrors.New(dErrors.CodeForbidden, "account is deactivated")
		s.loginFailure(ctx, method, "principal_inactive", err, "principal_id", principal.ID.String())
		return nil, err
	}

	cred, err := s.sessions.Issue(ctx, principal)
	if err != nil {
		s.loginFailure(ctx, method, "session_issue_failed", err, "principal_id", principal.ID.String())
		return nil, err
	}

	if created {
		s.incPrincipalsCreated()
	}
	s.loginCompleted(ctx, method, principal, created)
	return &models.LoginResult{
		SessionToken: cred.Token,
		TokenType:    tokenTypeBearer,
		ExpiresAt:    cred.ExpiresAt,
		Principal:    models.Summarize(principal),
		Created:      created,
	}, nil
}

// Me returns the summary of an authenticated principal.
func (s *Service) Me(ctx context.Context, principalID id.PrincipalID) (*models.PrincipalSummary, error) {
	p, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthenticated, "principal no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}
	if !p.Active {
		return nil, dErrors.New(dErrors.CodeForbidden, "account is deactivated")
	}
	summary := models.Summarize(p)
	return &summary, nil
}

// Deactivate marks target inactive so it can no longer log in. Principals are
// never deleted. An administrator cannot deactivate their own account, and
// deactivating an inactive principal changes nothing.
func (s *Service) Deactivate(ctx context.Context, actor, target id.PrincipalID) (*models.PrincipalSummary, error) {
	if actor == target {
		return nil, dErrors.New(dErrors.CodeConflict, "cannot deactivate your own account")
	}
	p, err := s.principals.FindByID(ctx, target)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "principal not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}
	if p.Active {
		p.Deactivate(requesttime.Now(ctx))
		if err := s.principals.Save(ctx, p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate principal")
		}
		s.logger.InfoContext(ctx, "principal deactivated",
			"principal_id", target.String(),
			"actor_id", actor.String(),
		)
	}
	summary := models.Summarize(p)
	return &summary, nil
}

// Logout ends a session. Credentials are stateless, so the client discards the
// token; the provider end-session URL is returned when one is known.
func (s *Service) Logout(ctx context.Context, principalID id.PrincipalID) *models.LogoutResult {
	s.logger.InfoContext(ctx, "principal logged out", "principal_id", principalID.String())
	return &models.LogoutResult{EndSessionURL: s.provider.EndSessionURL(s.cfg.PostLogoutRedirectURL)}
}
