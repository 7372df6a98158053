// Package auth authenticates requests carrying a session credential and
// places the verified principal in the request context.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/httputil"
	"medfayda/pkg/requestcontext"
)

// Verifier validates a bearer credential. It returns domain errors coded
// expired_credential or invalid_credential.
type Verifier interface {
	Verify(token string) (*requestcontext.Principal, error)
}

// FailureObserver counts rejected credentials by kind.
type FailureObserver interface {
	IncAuthFailure(kind string)
}

var errNoToken = dErrors.New(dErrors.CodeNoToken, "missing bearer token")

// bearerToken extracts the credential from the Authorization header. The
// scheme is case-insensitive; anything else counts as no token.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth rejects requests without a valid credential. Failures are 401
// with error kind no_token, expired_credential or invalid_credential.
func RequireAuth(verifier Verifier, observer FailureObserver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := bearerToken(r)
			if token == "" {
				reject(w, r, errNoToken, observer, logger)
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				if !dErrors.HasCode(err, dErrors.CodeExpiredCredential) {
					err = dErrors.Wrap(err, dErrors.CodeInvalidCredential, "invalid session token")
				}
				reject(w, r, err, observer, logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, *principal)))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, err error, observer FailureObserver, logger *slog.Logger) {
	ctx := r.Context()
	kind := string(dErrors.CodeOf(err))
	logger.WarnContext(ctx, "unauthorized access",
		"kind", kind,
		"path", r.URL.Path,
		"request_id", requestcontext.RequestID(ctx),
	)
	if observer != nil {
		observer.IncAuthFailure(kind)
	}
	httputil.WriteError(w, err)
}
