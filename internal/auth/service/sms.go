package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"medfayda/internal/auth/models"
	"medfayda/internal/auth/otp"
	"medfayda/internal/platform/tracer"
	"medfayda/internal/sentinel"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/middleware/requesttime"
)

var errLocalLoginDisabled = dErrors.New(dErrors.CodeDisabled, "local login is not enabled")

// SendCode opens an SMS verification session for the phone number and
// delivers a fresh six digit code to it.
func (s *Service) SendCode(ctx context.Context, req *models.SendCodeRequest) (*models.SendCodeResult, error) {
	if !s.LocalLoginEnabled() {
		return nil, errLocalLoginDisabled
	}
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanSMSSendCode)
	result, err := s.sendCode(ctx, req.PhoneNumber)
	span.End(err)
	return result, err
}

func (s *Service) sendCode(ctx context.Context, phone string) (*models.SendCodeResult, error) {
	now := requesttime.Now(ctx)
	if !s.throttle.Allow(phone, now) {
		err := dErrors.New(dErrors.CodeRateLimited, "too many codes requested, try again later")
		s.loginFailure(ctx, models.LoginMethodSMS, "send_throttled", err)
		return nil, err
	}

	cost := s.cfg.CodeHashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	challenge, code, err := otp.NewChallenge(phone, now, s.cfg.CodeTTL, cost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification code")
	}
	if err := s.codes.Create(ctx, challenge); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification code")
	}
	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		s.loginFailure(ctx, models.LoginMethodSMS, "sms_delivery_failed", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to deliver verification code")
	}

	s.incCodesSent()
	return &models.SendCodeResult{
		VerificationSessionID: challenge.ID,
		ExpiresAt:             challenge.ExpiresAt,
	}, nil
}

// VerifyCode checks a submitted code. After the maximum number of wrong codes
// the session is invalidated and even the correct code is refused. A correct
// code logs in the principal registered for the phone number, whichever way it
// first signed in; a patient keyed by the phone is created when there is none.
func (s *Service) VerifyCode(ctx context.Context, req *models.VerifyCodeRequest) (*models.LoginResult, error) {
	if !s.LocalLoginEnabled() {
		return nil, errLocalLoginDisabled
	}
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanSMSVerifyCode)
	result, err := s.verifyCode(ctx, req)
	span.End(err)
	return result, err
}

func (s *Service) verifyCode(ctx context.Context, req *models.VerifyCodeRequest) (*models.LoginResult, error) {
	challenge, err := s.codes.Verify(ctx, req.VerificationSessionID, req.Code, requesttime.Now(ctx))
	if err != nil {
		outcome, mapped := translateVerifyError(err)
		s.incCodeVerification(outcome)
		s.loginFailure(ctx, models.LoginMethodSMS, outcome, mapped)
		return nil, mapped
	}
	s.incCodeVerification("ok")

	existing, err := s.principals.FindByPhone(ctx, challenge.Phone)
	switch {
	case err == nil:
		principal, err := s.principals.TouchLogin(ctx, existing.ID, requesttime.Now(ctx))
		if err != nil {
			s.loginFailure(ctx, models.LoginMethodSMS, "principal_touch_failed", err)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record principal")
		}
		return s.finishLogin(ctx, principal, false, models.LoginMethodSMS)
	case !errors.Is(err, sentinel.ErrNotFound):
		s.loginFailure(ctx, models.LoginMethodSMS, "principal_lookup_failed", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up principal")
	}

	candidate := models.Principal{
		ExternalSubject: models.SMSSubjectPrefix + challenge.Phone,
		Phone:           challenge.Phone,
		Role:            defaultRole,
		Active:          true,
	}
	return s.completeLogin(ctx, candidate, models.LoginMethodSMS)
}

// translateVerifyError converts code store errors into domain errors exactly once.
func translateVerifyError(err error) (string, error) {
	switch {
	case errors.Is(err, otp.ErrCodeMismatch):
		return "mismatch", dErrors.New(dErrors.CodeInvalidCode, "verification code is incorrect")
	case errors.Is(err, sentinel.ErrExhausted):
		return "exhausted", dErrors.New(dErrors.CodeTooManyAttempts, "too many incorrect codes, request a new one")
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrAlreadyUsed):
		return "unknown", dErrors.New(dErrors.CodeInvalidState, "verification session is not valid")
	case errors.Is(err, sentinel.ErrExpired):
		return "expired", dErrors.New(dErrors.CodeInvalidState, "verification session expired")
	default:
		return "error", dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify code")
	}
}
