package access

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	id "medfayda/pkg/domain"
	dErrors "medfayda/pkg/domain-errors"
	"medfayda/pkg/platform/httputil"
	"medfayda/pkg/requestcontext"
)

// Require authorizes action against a resource built from the route. When
// ownerParam is set, the owning patient is read from that chi URL parameter
// and resourceParam, if set, names the resource id parameter.
// It must run after auth.RequireAuth.
func (g *Gate) Require(action id.Action, resourceType ResourceType, ownerParam, resourceParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := requestcontext.PrincipalFrom(ctx)
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
				return
			}

			res := Resource{Type: resourceType}
			if resourceParam != "" {
				res.ID = chi.URLParam(r, resourceParam)
			}
			if ownerParam != "" {
				owner, err := id.ParsePrincipalID(chi.URLParam(r, ownerParam))
				if err != nil {
					httputil.WriteError(w, err)
					return
				}
				res.OwnerID = owner
			}

			if err := g.Authorize(ctx, principal, action, res); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
