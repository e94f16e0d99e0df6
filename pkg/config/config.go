package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/kennel/pkg/auth"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/storage/sqldb"
)

// Storage types
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Authentication configuration
	Auth AuthConfig

	// Identity storage configuration
	Storage StorageConfig

	// Redis configuration, used for distributed login rate limiting
	Redis RedisConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Browser origins allowed to call the API
	CORSOrigins []string

	// Proxies (CIDRs or addresses) whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the peer address is the client.
	TrustedProxies []string
}

// AuthConfig holds token, password and login throttling settings
type AuthConfig struct {
	JWTSecret     string
	JWTExpiration time.Duration
	BcryptCost    int

	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// StorageConfig holds identity store settings
type StorageConfig struct {
	Type        string
	DatabaseURL string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration

	// Optional YAML seed; the built-in admin/guest seed is used when empty
	SeedFile string

	IdentityCacheSize int
	// IdentityCacheTTL of zero disables the identity cache
	IdentityCacheTTL time.Duration
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	KeyPrefix  string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("KENNEL_HOST", "0.0.0.0"),
		Port:            getEnv("KENNEL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("KENNEL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("KENNEL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("KENNEL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("KENNEL_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("KENNEL_HEALTH_PORT", "9090"),
		CORSOrigins:     getEnvList("KENNEL_CORS_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies:  getEnvList("KENNEL_TRUSTED_PROXIES", nil),
	}
}

// loadAuthConfig loads authentication configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:       os.Getenv("KENNEL_JWT_SECRET"),
		JWTExpiration:   time.Duration(getEnvInt64("KENNEL_JWT_EXPIRATION_MS", auth.DefaultTokenTTL.Milliseconds())) * time.Millisecond,
		BcryptCost:      getEnvInt("KENNEL_BCRYPT_COST", bcrypt.DefaultCost),
		LoginRateLimit:  getEnvInt("KENNEL_LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: getEnvDuration("KENNEL_LOGIN_RATE_WINDOW", time.Minute),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:              strings.ToLower(getEnv("KENNEL_STORAGE_TYPE", StorageMemory)),
		DatabaseURL:       getEnv("KENNEL_DATABASE_URL", ""),
		MaxConns:          getEnvInt("KENNEL_DATABASE_MAX_CONNS", 20),
		MinConns:          getEnvInt("KENNEL_DATABASE_MIN_CONNS", 2),
		Timeout:           getEnvDuration("KENNEL_DATABASE_TIMEOUT", 10*time.Second),
		SeedFile:          getEnv("KENNEL_SEED_FILE", ""),
		IdentityCacheSize: getEnvInt("KENNEL_IDENTITY_CACHE_SIZE", 1024),
		IdentityCacheTTL:  getEnvDuration("KENNEL_IDENTITY_CACHE_TTL", 30*time.Second),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("KENNEL_REDIS_URL", ""),
		Password:   getEnv("KENNEL_REDIS_PASSWORD", ""),
		DB:         getEnvInt("KENNEL_REDIS_DB", 0),
		MaxRetries: getEnvInt("KENNEL_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("KENNEL_REDIS_POOL_SIZE", 10),
		KeyPrefix:  getEnv("KENNEL_REDIS_KEY_PREFIX", "kennel:ratelimit"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("KENNEL_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("KENNEL_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("KENNEL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("KENNEL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("KENNEL_OTEL_SERVICE_NAME", "kennel"),
		OTelServiceVersion: getEnv("KENNEL_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("KENNEL_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("KENNEL_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}
	if _, err := c.Server.ClientIPResolver(); err != nil {
		return fmt.Errorf("KENNEL_TRUSTED_PROXIES: %w", err)
	}

	// Validate auth config
	if c.Auth.JWTSecret == "" {
		return errors.New("KENNEL_JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("KENNEL_JWT_SECRET must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Auth.JWTExpiration <= 0 {
		return errors.New("token expiration must be positive")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.LoginRateLimit <= 0 {
		return errors.New("login rate limit must be positive")
	}
	if c.Auth.LoginRateWindow <= 0 {
		return errors.New("login rate window must be positive")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case StorageMemory:
	case StorageSQLite, StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for %s storage", c.Storage.Type)
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, sqlite, or postgres)", c.Storage.Type)
	}
	if c.Storage.IdentityCacheTTL < 0 {
		return errors.New("identity cache TTL must not be negative")
	}
	if c.Storage.IdentityCacheTTL > 0 && c.Storage.IdentityCacheSize <= 0 {
		return errors.New("identity cache size must be positive when the cache is enabled")
	}

	// Validate Redis config
	if c.Redis.Enabled() {
		if _, err := c.Redis.Options(); err != nil {
			return err
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// DatabaseConfig returns the connection settings of a SQL-backed store
func (s StorageConfig) DatabaseConfig() (sqldb.Config, error) {
	dialect, err := sqldb.ParseDialect(s.Type)
	if err != nil {
		return sqldb.Config{}, err
	}
	cfg := sqldb.DefaultConfig(dialect, s.DatabaseURL)
	if s.MaxConns > 0 {
		cfg.MaxConns = s.MaxConns
	}
	if s.MinConns > 0 {
		cfg.MinConns = s.MinConns
	}
	if s.Timeout > 0 {
		cfg.Timeout = s.Timeout
	}
	return cfg, nil
}

// Enabled reports whether a Redis URL was configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// Options converts the URL and overrides into go-redis client options
func (r RedisConfig) Options() (*redis.Options, error) {
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if r.Password != "" {
		opts.Password = r.Password
	}
	if r.DB > 0 {
		opts.DB = r.DB
	}
	if r.MaxRetries > 0 {
		opts.MaxRetries = r.MaxRetries
	}
	if r.PoolSize > 0 {
		opts.PoolSize = r.PoolSize
	}
	return opts, nil
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health and metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// ClientIPResolver builds the resolver that trusts the configured proxies
func (s ServerConfig) ClientIPResolver() (*auth.ClientIPResolver, error) {
	return auth.NewClientIPResolver(s.TrustedProxies)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
