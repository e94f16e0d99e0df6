package auth

import (
	"context"

	"github.com/platinummonkey/kennel/pkg/contextkeys"
)

// WithPrincipal stores an authenticated principal on the context
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	ctx = contextkeys.WithPrincipal(ctx, principal)
	return contextkeys.WithUserID(ctx, principal.Name)
}

// PrincipalFromContext returns the principal populated by the authenticator.
// It returns nil when the request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	if !ok {
		return nil
	}
	return principal
}
