package middleware

import (
	"net/http"

	"github.com/platinummonkey/kennel/pkg/auth"
	"github.com/platinummonkey/kennel/pkg/observability"
)

// RequireAuthenticated creates middleware that rejects requests without a principal
func RequireAuthenticated(unauthorized Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.PrincipalFromContext(r.Context()) == nil {
				reject(unauthorized, w, r, ErrAuthenticationRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole creates middleware that admits only principals with the given role.
// A missing principal is answered by unauthorized, a wrong role by forbidden.
func RequireRole(role auth.Role, unauthorized, forbidden Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.PrincipalFromContext(r.Context())
			if principal == nil {
				reject(unauthorized, w, r, ErrAuthenticationRequired)
				return
			}

			if !principal.HasAuthority(role.Authority()) {
				reject(forbidden, w, r, ErrInsufficientRole)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func reject(responder Responder, w http.ResponseWriter, r *http.Request, cause error) {
	if err := responder.Commence(w, r, cause); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to write rejection")
	}
}
