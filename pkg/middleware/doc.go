// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Overview
//
// This package implements the per-request half of kennel's authentication:
// bearer token verification, route-level role checks, the fixed 401/403
// rejection responses and login throttling.
//
// # Middleware Components
//
// AuthMiddleware: Bearer token authentication
//
//	authn := middleware.NewAuthMiddleware(codec, store)
//	router.Use(authn.Handler)
//	// Attaches *auth.Principal on success, otherwise passes the request on unchanged
//
// RequireAuthenticated / RequireRole: Route checks
//
//	unauthorized := middleware.NewUnauthorizedResponder(logger) // 401 "Error: Unauthorized"
//	forbidden := middleware.NewForbiddenResponder(logger)       // 403 "Error: Forbidden"
//	router.Handle("/admin", middleware.RequireRole(auth.RoleAdmin, unauthorized, forbidden)(h))
//
// LoginRateLimiter: Per client IP login throttling
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultLoginRateLimitConfig())
//	// or middleware.NewDistributedRateLimiter(redisClient, cfg, "kennel:ratelimit")
//	router.Handle("/api/auth/login", middleware.NewLoginRateLimiter(limiter, clientIPs, logger).Handler(h))
//
// # Silent Deny
//
// AuthMiddleware never rejects a request. Missing headers, malformed headers,
// bad signatures, unknown subjects, expired tokens and disabled identities all
// leave the context empty and call the next handler exactly once. Rejection
// happens later in RequireAuthenticated or RequireRole.
//
// # Rate Limiting
//
// Login: 10 req/min per client IP, no burst. The Redis limiter fails open.
//
// # Related Packages
//
//   - pkg/auth: Token codec, principal
//   - pkg/observability: Auth outcome metrics
package middleware
