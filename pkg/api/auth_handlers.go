package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/kennel/pkg/auth"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/middleware"
	"github.com/platinummonkey/kennel/pkg/observability"
)

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// MeResponse is the body of GET /api/auth/me
type MeResponse struct {
	auth.IdentityView
	Authorities []string `json:"authorities"`
}

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	login        *auth.LoginService
	store        auth.IdentityStore
	audit        *auth.AuditLogger
	rateLimiter  *middleware.LoginRateLimiter
	unauthorized middleware.Responder
}

// NewAuthHandlers creates a new auth handlers instance.
// rateLimiter may be nil to leave login attempts unthrottled.
func NewAuthHandlers(login *auth.LoginService, store auth.IdentityStore, audit *auth.AuditLogger, rateLimiter *middleware.LoginRateLimiter, unauthorized middleware.Responder) *AuthHandlers {
	return &AuthHandlers{
		login:        login,
		store:        store,
		audit:        audit,
		rateLimiter:  rateLimiter,
		unauthorized: unauthorized,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	var login http.Handler = http.HandlerFunc(h.handleLogin)
	if h.rateLimiter != nil {
		login = h.rateLimiter.Handler(login)
	}

	router.Handle("/api/auth/login", login).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/logout", h.handleLogout).Methods(http.MethodPost)
	router.Handle("/api/auth/me", middleware.RequireAuthenticated(h.unauthorized)(http.HandlerFunc(h.handleMe))).Methods(http.MethodGet)
}

// handleLogin handles POST /api/auth/login
func (h *AuthHandlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "username and password are required")
		return
	}

	result, err := h.login.Login(r.Context(), username, req.Password)
	switch {
	case err == nil:
		h.audit.LogFromRequest(r, auth.ActionLogin, username, auth.StatusSuccess, "")
		_ = httputil.WriteSuccess(w, result)
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.audit.LogFromRequest(r, auth.ActionAuthFailure, username, auth.StatusFailure, auth.LoginOutcomeInvalidCredentials)
		httputil.WriteUnauthorized(w, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrAccountDisabled):
		h.audit.LogFromRequest(r, auth.ActionAuthFailure, username, auth.StatusDenied, auth.LoginOutcomeDisabled)
		httputil.WriteForbidden(w, auth.ErrAccountDisabled.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("login failed")
		httputil.WriteInternalError(w)
	}
}

// handleLogout handles POST /api/auth/logout.
// Tokens are stateless, so logout only records the event; the client
// discards its token.
func (h *AuthHandlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
		h.audit.LogFromRequest(r, auth.ActionLogout, principal.Name, auth.StatusSuccess, "")
	}
	_ = httputil.WriteMessage(w, "Logout successful")
}

// handleMe handles GET /api/auth/me
func (h *AuthHandlers) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	identity, err := h.store.FindByName(r.Context(), principal.Name)
	if errors.Is(err, auth.ErrIdentityNotFound) {
		httputil.WriteNotFoundError(w, "identity not found")
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to load current identity")
		httputil.WriteInternalError(w)
		return
	}

	_ = httputil.WriteSuccess(w, MeResponse{
		IdentityView: identity.View(),
		Authorities:  principal.Authorities,
	})
}
