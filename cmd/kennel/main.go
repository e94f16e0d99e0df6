package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/kennel/pkg/api"
	"github.com/platinummonkey/kennel/pkg/auth"
	"github.com/platinummonkey/kennel/pkg/config"
	"github.com/platinummonkey/kennel/pkg/httputil"
	"github.com/platinummonkey/kennel/pkg/middleware"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/storage"
	"github.com/platinummonkey/kennel/pkg/storage/sqldb"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

// identityBackend is the primary identity store: looked up, listed and seeded
type identityBackend interface {
	api.IdentityDirectory
	storage.IdentityWriter
}

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kennel: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "kennel")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("kennel exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) (err error) {
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	// Clients are registered as soon as they exist. If setup fails before the
	// servers start they are released here; otherwise after the servers drain.
	resources := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	serving := false
	defer func() {
		if err != nil && !serving {
			_ = resources.Shutdown(context.Background())
		}
	}()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}
	resources.Register("otel", providers.Shutdown)

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	backend, db, err := openIdentityStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	if db != nil {
		resources.Register("database", func(context.Context) error { return db.Close() })
	}

	verifier := auth.NewBcryptVerifier(cfg.Auth.BcryptCost)
	if err := seedIdentities(ctx, backend, cfg.Storage.SeedFile, verifier, logger); err != nil {
		return err
	}

	// Request authentication and login read through the cache when enabled
	var lookup auth.IdentityStore = backend
	if cfg.Storage.IdentityCacheTTL > 0 {
		cached := storage.NewCachedIdentityStore(backend, cfg.Storage.IdentityCacheSize, cfg.Storage.IdentityCacheTTL)
		if metrics != nil {
			cached.SetRecorder(metrics)
		}
		lookup = cached
	}

	codec, err := auth.NewTokenCodec([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTExpiration)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}

	loginOpts := []auth.LoginServiceOption{auth.WithLoginLogger(logger)}
	if metrics != nil {
		loginOpts = append(loginOpts, auth.WithLoginRecorder(metrics))
	}
	login := auth.NewLoginService(lookup, verifier, codec, loginOpts...)

	clientIPs, err := cfg.Server.ClientIPResolver()
	if err != nil {
		return err
	}

	limiter, redisClient, err := newLoginLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		resources.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	apiServer := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewServer(api.Options{
			Codec:        codec,
			Login:        login,
			Store:        lookup,
			Directory:    backend,
			LoginLimiter: limiter,
			ClientIPs:    clientIPs,
			Metrics:      metrics,
			Logger:       logger,
			CORS: httputil.CORSConfig{
				AllowedOrigins:   cfg.Server.CORSOrigins,
				AllowCredentials: true,
				MaxAge:           time.Hour,
			},
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := &http.Server{
		Addr:         cfg.Server.HealthAddr(),
		Handler:      api.NewHealthRouter(observability.NewHealthChecker(db, redisClient, version), registry),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Stop accepting traffic first, then flush telemetry and close clients
	shutdown.RegisterServer("api", apiServer)
	shutdown.RegisterServer("health", healthServer)
	shutdown.Register("resources", resources.Shutdown)
	serving = true

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(apiServer, "api", logger)
	})
	g.Go(func() error {
		return serve(healthServer, "health", logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

func serve(server *http.Server, name string, logger *observability.Logger) error {
	logger.WithFields(map[string]interface{}{
		"server": name,
		"addr":   server.Addr,
	}).Info("Listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// openIdentityStore returns the configured backend and, for SQL backends, the
// pool used for readiness checks
func openIdentityStore(ctx context.Context, cfg config.StorageConfig, logger *observability.Logger) (identityBackend, *sql.DB, error) {
	if cfg.Type == config.StorageMemory {
		logger.Warn("Using in-memory identity store, identities are lost on restart")
		return storage.NewMemoryIdentityStore(), nil, nil
	}

	dbCfg, err := cfg.DatabaseConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := sqldb.Open(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}

	store := sqldb.NewIdentityStore(db, dbCfg.Dialect)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	logger.WithField("dialect", string(dbCfg.Dialect)).Info("Identity database ready")
	return store, db, nil
}

func seedIdentities(ctx context.Context, store storage.IdentityWriter, path string, hasher storage.Hasher, logger *observability.Logger) error {
	seed := storage.DefaultSeed()
	if path != "" {
		loaded, err := storage.LoadSeedFile(path)
		if err != nil {
			return err
		}
		seed = loaded
	}

	created, err := storage.Seed(ctx, store, seed, hasher)
	if err != nil {
		return fmt.Errorf("failed to seed identities: %w", err)
	}
	logger.WithField("created", created).Info("Identity seed applied")
	return nil
}

// newLoginLimiter uses Redis when configured so limits hold across replicas,
// and an in-process token bucket otherwise
func newLoginLimiter(ctx context.Context, cfg *config.Config, logger *observability.Logger) (middleware.Limiter, *redis.Client, error) {
	rlCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Auth.LoginRateLimit,
		WindowDuration:    cfg.Auth.LoginRateWindow,
	}

	if !cfg.Redis.Enabled() {
		limiter := middleware.NewRateLimiter(rlCfg)
		limiter.StartCleanup(ctx, logger)
		return limiter, nil, nil
	}

	opts, err := cfg.Redis.Options()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		// Rate limiting fails open, so an unreachable Redis is not fatal
		logger.WithError(err).Warn("Redis unreachable at startup")
	}
	return middleware.NewDistributedRateLimiter(client, rlCfg, cfg.Redis.KeyPrefix), client, nil
}
