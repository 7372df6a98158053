package service

import (
	"context"

	"medfayda/internal/auth/models"
	"medfayda/internal/auth/provider"
	"medfayda/internal/platform/tracer"
	dErrors "medfayda/pkg/domain-errors"
)

// Initiate starts a federated login: it records a single-use attempt and
// returns the provider authorization URL bound to its state, nonce and PKCE
// challenge. Nothing durable is written for the principal.
func (s *Service) Initiate(ctx context.Context) (*models.InitiateResult, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLoginInitiate)
	attempt, err := s.attempts.Begin(ctx)
	span.End(err)
	if err != nil {
		s.loginFailure(ctx, models.LoginMethodFederated, "attempt_begin_failed", err)
		return nil, err
	}
	return &models.InitiateResult{
		AuthorizationURL: s.provider.AuthCodeURL(attempt.State, attempt.Nonce, attempt.PKCEChallenge),
		State:            attempt.State,
	}, nil
}

// HandleCallback completes a federated login. The steps run in order and the
// first failure ends the flow: consume the attempt, exchange the code, verify
// the ID token, map claims, upsert the principal and issue a session. A
// provider error still consumes the attempt.
func (s *Service) HandleCallback(ctx context.Context, req *models.CallbackRequest) (*models.LoginResult, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()

	ctx, span := s.tracer.Start(ctx, tracer.SpanLoginCallback)
	result, err := s.handleCallback(ctx, req)
	if result != nil {
		span.SetAttributes(tracer.Bool(tracer.AttrCreated, result.Created), tracer.String(tracer.AttrRole, result.Principal.Role))
	}
	span.End(err)
	return result, err
}

func (s *Service) handleCallback(ctx context.Context, req *models.CallbackRequest) (*models.LoginResult, error) {
	attempt, err := s.attempts.Consume(ctx, req.State)
	if err != nil {
		s.loginFailure(ctx, models.LoginMethodFederated, "state_rejected", err)
		return nil, err
	}
	if req.Error != "" {
		err := dErrors.New(dErrors.CodeTokenExchangeFailed, "identity provider rejected the login")
		s.loginFailure(ctx, models.LoginMethodFederated, "provider_error", err,
			"provider_error", req.Error,
			"provider_error_description", req.ErrorDescription,
		)
		return nil, err
	}
	if err := req.Validate(); err != nil {
		s.loginFailure(ctx, models.LoginMethodFederated, "invalid_callback", err)
		return nil, err
	}

	tokens, err := s.provider.Exchange(ctx, req.Code, attempt.PKCEVerifier)
	if err != nil {
		s.loginFailure(ctx, models.LoginMethodFederated, "token_exchange_failed", err)
		return nil, err
	}

	claims, err := s.provider.VerifyIDToken(ctx, tokens.IDToken, attempt.Nonce)
	if err != nil {
		s.loginFailure(ctx, models.LoginMethodFederated, "id_token_rejected", err)
		return nil, err
	}

	if err := s.enrich(ctx, claims, tokens.AccessToken); err != nil {
		s.loginFailure(ctx, models.LoginMethodFederated, "userinfo_rejected", err)
		return nil, err
	}

	candidate := provider.MapClaims(*claims)
	return s.completeLogin(ctx, candidate, models.LoginMethodFederated)
}

// enrich fills profile claims from userinfo when the ID token carries none.
// A userinfo subject that differs from the ID token fails the login; an
// unreachable endpoint does not.
func (s *Service) enrich(ctx context.Context, claims *provider.IdentityClaims, accessToken string) error {
	if claims.HasProfile() || accessToken == "" {
		return nil
	}
	extra, err := s.provider.UserInfo(ctx, accessToken, claims.Subject)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidIdentityToken) {
			return err
		}
		s.logger.WarnContext(ctx, "userinfo enrichment skipped",
			"subject_hash", tracer.HashSubject(claims.Subject),
			"error", err,
		)
		return nil
	}
	claims.Merge(extra)
	return nil
}
