// Package api exposes kennel over HTTP.
//
// # Routes
//
//	POST /api/auth/login         credentials in, bearer token out (rate limited)
//	POST /api/auth/logout        stateless, audit only
//	GET  /api/auth/me            current identity, any authenticated role
//	GET  /api/identities         ADMIN only
//	GET  /api/identities/{name}  ADMIN only
//
// Every API request passes through middleware.AuthMiddleware, which never
// rejects. Protected routes are wrapped in RequireAuthenticated or
// RequireRole and answer 401 "Error: Unauthorized" or 403 "Error: Forbidden"
// as plain text.
//
// NewHealthRouter serves /health/live, /health/ready and /metrics on the
// internal port.
package api
