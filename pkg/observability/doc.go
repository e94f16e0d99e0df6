// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing for kennel.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("username", name).Info("login succeeded")
//
// Handlers pick up the request-scoped logger with FromContext, which adds
// request_id and user_id when present.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//
// Metrics implements the recorder interfaces of the authenticator
// (RecordAuthentication), the login service (RecordLogin) and the identity
// cache (RecordIdentityCache).
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "kennel",
//	}, logger)
//	defer providers.Shutdown(ctx)
package observability
