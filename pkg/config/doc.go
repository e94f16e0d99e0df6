// Package config loads kennel configuration from KENNEL_* environment
// variables.
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// LoadConfig applies defaults and then validates the result. The only
// required variable is KENNEL_JWT_SECRET, which must hold at least 32 bytes.
//
// # Sections
//
//	Server         listen addresses, timeouts, CORS origins
//	Auth           token secret and lifetime, bcrypt cost, login rate limit
//	Storage        memory, sqlite or postgres identity store, seed file, cache
//	Redis          optional distributed rate limiter backend
//	Observability  log level, Prometheus, OpenTelemetry
package config
