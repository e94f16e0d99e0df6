package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/kennel/pkg/auth"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/middleware"
	"github.com/platinummonkey/kennel/pkg/observability"
)

// Options wires the API server to its collaborators
type Options struct {
	Codec *auth.TokenCodec
	Login *auth.LoginService

	// Store backs request authentication and /api/auth/me
	Store auth.IdentityStore
	// Directory backs the admin identity routes; nil disables them
	Directory IdentityDirectory

	// LoginLimiter throttles POST /api/auth/login per client; nil disables it
	LoginLimiter middleware.Limiter
	// ClientIPs resolves the client address for rate limiting and audit;
	// nil trusts no forwarding headers
	ClientIPs *auth.ClientIPResolver

	Metrics *observability.Metrics
	Logger  *observability.Logger
	CORS    httputil.CORSConfig
}

// Server is the kennel HTTP API
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates the API server and registers all routes
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	audit := auth.NewAuditLogger(logger, opts.ClientIPs)
	unauthorized := middleware.NewUnauthorizedResponder(logger, middleware.WithRejectionAudit(audit))
	forbidden := middleware.NewForbiddenResponder(logger, middleware.WithRejectionAudit(audit))

	authOpts := []middleware.AuthOption{middleware.WithAuthLogger(logger)}
	if opts.Metrics != nil {
		authOpts = append(authOpts, middleware.WithAuthRecorder(opts.Metrics))
	}

	var rateLimiter *middleware.LoginRateLimiter
	if opts.LoginLimiter != nil {
		rateLimiter = middleware.NewLoginRateLimiter(opts.LoginLimiter, opts.ClientIPs, logger)
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if opts.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	// Authentication never rejects; route-level checks below do.
	router.Use(middleware.NewAuthMiddleware(opts.Codec, opts.Store, authOpts...).Handler)

	NewAuthHandlers(opts.Login, opts.Store, audit, rateLimiter, unauthorized).RegisterRoutes(router)
	if opts.Directory != nil {
		NewIdentityHandlers(opts.Directory, unauthorized, forbidden).RegisterRoutes(router)
	}

	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.CORSMiddleware(opts.CORS),
	)(router)

	return &Server{
		router:  router,
		handler: otelhttp.NewHandler(handler, "kennel.api"),
	}
}

// Router exposes the route table
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// NewHealthRouter serves liveness, readiness and, when registry is non-nil,
// the Prometheus scrape endpoint on the internal port
func NewHealthRouter(checker *observability.HealthChecker, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, checker)
	if registry != nil {
		observability.RegisterMetricsEndpoint(router, registry)
	}
	return router
}
