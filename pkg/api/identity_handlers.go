package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/kennel/pkg/auth"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/middleware"
	"github.com/platinummonkey/kennel/pkg/observability"
)

// IdentityDirectory is an identity store that can also enumerate identities
type IdentityDirectory interface {
	auth.IdentityStore
	List(ctx context.Context) ([]*auth.Identity, error)
}

// IdentityHandlers exposes read-only identity administration to admins
type IdentityHandlers struct {
	directory    IdentityDirectory
	unauthorized middleware.Responder
	forbidden    middleware.Responder
}

// NewIdentityHandlers creates identity handlers
func NewIdentityHandlers(directory IdentityDirectory, unauthorized, forbidden middleware.Responder) *IdentityHandlers {
	return &IdentityHandlers{
		directory:    directory,
		unauthorized: unauthorized,
		forbidden:    forbidden,
	}
}

// RegisterRoutes registers identity routes, all restricted to ADMIN
func (h *IdentityHandlers) RegisterRoutes(router *mux.Router) {
	adminOnly := middleware.RequireRole(auth.RoleAdmin, h.unauthorized, h.forbidden)

	router.Handle("/api/identities", adminOnly(http.HandlerFunc(h.listIdentities))).Methods(http.MethodGet)
	router.Handle("/api/identities/{name}", adminOnly(http.HandlerFunc(h.getIdentity))).Methods(http.MethodGet)
}

// listIdentities handles GET /api/identities
func (h *IdentityHandlers) listIdentities(w http.ResponseWriter, r *http.Request) {
	identities, err := h.directory.List(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list identities")
		httputil.WriteInternalError(w)
		return
	}

	views := make([]auth.IdentityView, 0, len(identities))
	for _, identity := range identities {
		views = append(views, identity.View())
	}
	_ = httputil.WriteSuccess(w, views)
}

// getIdentity handles GET /api/identities/{name}
func (h *IdentityHandlers) getIdentity(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	identity, err := h.directory.FindByName(r.Context(), name)
	if errors.Is(err, auth.ErrIdentityNotFound) {
		httputil.WriteNotFoundError(w, "identity not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load identity")
		httputil.WriteInternalError(w)
		return
	}

	_ = httputil.WriteSuccess(w, identity.View())
}
