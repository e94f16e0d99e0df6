// Package httputil provides HTTP helpers shared by the kennel API: JSON
// responses, request parsing and the outer middleware chain.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteUnauthorized(w, "Invalid credentials")
//	httputil.WriteTooManyRequests(w, "rate limit exceeded")
//
// Error bodies are always {"error": "..."}.
//
// # Request Parsing
//
//	var req LoginRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware(corsConfig),
//	)(router)
package httputil
