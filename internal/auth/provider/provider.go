// Package provider is the Fayda ID OpenID Connect client: authorization URL
// construction, code exchange with PKCE, ID token verification against the
// provider key set, and userinfo enrichment.
package provider

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"medfayda/internal/auth/metrics"
	"medfayda/internal/platform/tracer"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/circuit"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultRetryBackoff = 250 * time.Millisecond
	defaultClockSkew    = time.Minute
	maxUserInfoBytes    = 64 << 10
)

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{"openid", "profile", "email", "phone"}

var signingMethods = []string{"RS256", "RS384", "RS512", "PS256", "ES256", "ES384"}

// Config describes the provider registration. Endpoints left empty are
// resolved through discovery at startup.
type Config struct {
	IssuerURL     string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	AuthURL       string
	TokenURL      string
	UserInfoURL   string
	JWKSURL       string
	EndSessionURL string
	Scopes        []string
	// ClientAssertionKey is a base64 encoded private JWK. When set the client
	// authenticates with private_key_jwt instead of client_secret_post.
	ClientAssertionKey string
	Timeout            time.Duration
	RetryBackoff       time.Duration
	ClockSkew          time.Duration
}

func (c Config) needsDiscovery() bool {
	return c.AuthURL == "" || c.TokenURL == "" || c.JWKSURL == ""
}

// TokenSet is the result of a successful code exchange.
type TokenSet struct {
	AccessToken string
	IDToken     string
	Expiry      time.Time
}

// Client talks to the identity provider.
type Client struct {
	cfg       Config
	oauth     oauth2.Config
	http      *http.Client
	keys      *keyCache
	assertion *assertionSigner
	tracer    tracer.Tracer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	// breaker guards the token endpoint; it only counts provider-side failures.
	breaker *circuit.Breaker
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source for ID token validation.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBreaker replaces the token endpoint circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// New builds a Client, running discovery when endpoints are not configured.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("provider issuer, client id and redirect url are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaultClockSkew
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		tracer:  tracer.NewNoop(),
		logger:  slog.Default(),
		now:     time.Now,
		breaker: circuit.New("fayda_token", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if cfg.needsDiscovery() {
		doc, err := discover(ctx, c.http, cfg.IssuerURL)
		if err != nil {
			return nil, err
		}
		cfg = doc.apply(cfg)
	}
	c.cfg = cfg

	if cfg.ClientAssertionKey != "" {
		signer, err := newAssertionSigner(cfg.ClientAssertionKey, cfg.ClientID, cfg.TokenURL)
		if err != nil {
			return nil, err
		}
		c.assertion = signer
	}

	c.oauth = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	c.keys = newKeyCache(cfg.JWKSURL, c.http)
	return c, nil
}

// AuthCodeURL builds the provider authorization URL for one login attempt.
func (c *Client) AuthCodeURL(state, nonce, challenge string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// EndSessionURL returns the provider logout URL, or "" when the provider has none.
func (c *Client) EndSessionURL(postLogoutRedirect string) string {
	if c.cfg.EndSessionURL == "" {
		return ""
	}
	if postLogoutRedirect == "" {
		return c.cfg.EndSessionURL
	}
	sep := "?"
	if strings.Contains(c.cfg.EndSessionURL, "?") {
		sep = "&"
	}
	return c.cfg.EndSessionURL + sep + "post_logout_redirect_uri=" + url.QueryEscape(postLogoutRedirect)
}

// Exchange redeems code with the PKCE verifier. A provider 4xx is final;
// transport failures and 5xx responses are retried once after a backoff.
// While the token endpoint keeps failing the call is refused without a
// network round trip.
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanTokenExchange)
	if err := c.breaker.Allow(); err != nil {
		span.End(err)
		c.observe("token", "circuit_open", time.Now())
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity provider is temporarily unavailable")
	}
	caller := ctx
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			span.AddEvent("retry", tracer.Int(tracer.AttrAttempt, attempt))
			if err := sleepContext(ctx, c.cfg.RetryBackoff); err != nil {
				break
			}
		}
		opts := []oauth2.AuthCodeOption{oauth2.VerifierOption(verifier)}
		if c.assertion != nil {
			assertionOpts, err := c.assertion.options(c.now())
			if err != nil {
				c.recordBreaker(caller, err)
				span.End(err)
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign client assertion")
			}
			opts = append(opts, assertionOpts...)
		}

		start := time.Now()
		tok, err := c.oauth.Exchange(ctx, code, opts...)
		if err == nil {
			c.observe("token", "ok", start)
			c.recordBreaker(caller, nil)
			span.End(nil)
			return tokenSet(tok)
		}
		lastErr = err
		c.observe("token", outcome(err), start)
		c.logger.WarnContext(ctx, "provider token exchange failed", "attempt", attempt, "error", err)
		if !retryable(err) {
			break
		}
	}
	c.recordBreaker(caller, lastErr)
	span.End(lastErr)
	return nil, dErrors.Wrap(lastErr, dErrors.CodeTokenExchangeFailed, "failed to exchange authorization code")
}

// recordBreaker feeds an exchange outcome to the breaker. A 4xx means the
// provider is up and rejected this request, so it counts as a success. A call
// cut short by the caller's own context says nothing about the provider.
func (c *Client) recordBreaker(ctx context.Context, err error) {
	if err != nil && ctx.Err() != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		c.breaker.Abandon()
		return
	}
	var change circuit.StateChange
	if err == nil || outcome(err) == "client_error" {
		change = c.breaker.RecordSuccess()
	} else {
		change = c.breaker.RecordFailure()
	}
	switch {
	case change.Opened:
		c.logger.ErrorContext(ctx, "provider token endpoint circuit opened", "breaker", c.breaker.Name())
	case change.Closed:
		c.logger.InfoContext(ctx, "provider token endpoint circuit closed", "breaker", c.breaker.Name())
	}
}

// VerifyIDToken validates signature, issuer, audience, expiry and nonce, then
// returns the identity claims carried by the token.
func (c *Client) VerifyIDToken(ctx context.Context, raw, expectedNonce string) (*IdentityClaims, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanIDTokenVerify)
	claims, err := c.verifyIDToken(ctx, raw, expectedNonce)
	span.End(err)
	if err != nil {
		c.logger.WarnContext(ctx, "id token rejected", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidIdentityToken, "identity token could not be validated")
	}
	return claims, nil
}

type idTokenClaims struct {
	Nonce           string `json:"nonce"`
	AuthorizedParty string `json:"azp,omitempty"`
	jwt.RegisteredClaims
}

func (c *Client) verifyIDToken(ctx context.Context, raw, expectedNonce string) (*IdentityClaims, error) {
	if raw == "" {
		return nil, errors.New("id token missing from token response")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(signingMethods),
		jwt.WithIssuer(c.cfg.IssuerURL),
		jwt.WithAudience(c.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.cfg.ClockSkew),
		jwt.WithTimeFunc(c.now),
	)
	var registered idTokenClaims
	_, err := parser.ParseWithClaims(raw, &registered, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return c.keys.key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	if registered.Subject == "" {
		return nil, errors.New("id token has no subject")
	}
	if expectedNonce == "" || subtle.ConstantTimeCompare([]byte(registered.Nonce), []byte(expectedNonce)) != 1 {
		return nil, errors.New("id token nonce mismatch")
	}
	if len(registered.Audience) > 1 && registered.AuthorizedParty != c.cfg.ClientID {
		return nil, errors.New("id token azp does not match client")
	}

	var identity IdentityClaims
	if err := decodePayload(raw, &identity); err != nil {
		return nil, err
	}
	identity.Subject = registered.Subject
	return &identity, nil
}

// UserInfo fetches profile claims with the access token. The response subject
// must equal expectedSubject.
func (c *Client) UserInfo(ctx context.Context, accessToken, expectedSubject string) (*IdentityClaims, error) {
	if c.cfg.UserInfoURL == "" {
		return nil, nil
	}
	ctx, span := c.tracer.Start(ctx, tracer.SpanUserInfo)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	claims, err := c.fetchUserInfo(ctx, accessToken)
	if err != nil {
		c.observe("userinfo", outcome(err), start)
		span.End(err)
		return nil, dErrors.Wrap(err, dErrors.CodeTokenExchangeFailed, "failed to fetch provider profile")
	}
	c.observe("userinfo", "ok", start)
	if claims.Subject != expectedSubject {
		err := errors.New("userinfo subject does not match id token")
		span.End(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidIdentityToken, "identity token could not be validated")
	}
	span.End(nil)
	return claims, nil
}

func (c *Client) fetchUserInfo(ctx context.Context, accessToken string) (*IdentityClaims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}
	var claims IdentityClaims
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return &claims, nil
}

func (c *Client) observe(endpoint, result string, start time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveProviderCall(endpoint, result, start)
	}
}

func tokenSet(tok *oauth2.Token) (*TokenSet, error) {
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, dErrors.New(dErrors.CodeInvalidIdentityToken, "provider returned no identity token")
	}
	return &TokenSet{AccessToken: tok.AccessToken, IDToken: idToken, Expiry: tok.Expiry}, nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("provider returned status %d", e.code) }

// retryable reports whether a failed exchange may be attempted again:
// provider 5xx responses and transport failures, never 4xx.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func outcome(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		if re.Response.StatusCode >= 500 {
			return "server_error"
		}
		return "client_error"
	}
	var se *statusError
	if errors.As(err, &se) {
		if se.code >= 500 {
			return "server_error"
		}
		return "client_error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "transport_error"
}

func decodePayload(raw string, v any) error {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return errors.New("malformed id token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("decode id token payload: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode id token claims: %w", err)
	}
	return nil
}
