// @title           LearnHub Identity API
// @version         1.0
// @description     Session lifecycle, credential lockout, rate limiting and role-based authorization for LearnHub.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/learnhub/identity-service/internal/api"
	"github.com/learnhub/identity-service/internal/api/handler"
	"github.com/learnhub/identity-service/internal/api/metrics"
	"github.com/learnhub/identity-service/internal/core/domain"
	"github.com/learnhub/identity-service/internal/core/ports"
	"github.com/learnhub/identity-service/internal/core/service"
	"github.com/learnhub/identity-service/internal/infrastructure/config"
	"github.com/learnhub/identity-service/internal/infrastructure/db/mongo"
	"github.com/learnhub/identity-service/internal/infrastructure/db/redis"
	"github.com/learnhub/identity-service/internal/infrastructure/memory"
	"github.com/learnhub/identity-service/internal/infrastructure/queue"
	"github.com/learnhub/identity-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		// logger is not configured yet
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.Init(logger.Options{
		Level:       cfg.LogLevel,
		Pretty:      cfg.LogPretty,
		Service:     "identity",
		Env:         cfg.Env,
		Breadcrumbs: cfg.SentryDSN != "",
	})

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			AttachStacktrace: true,
		}); err != nil {
			log.Error().Err(err).Msg("sentry init failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	clock := service.SystemClock{}
	checks := map[string]handler.Check{}

	// --- Credential stores and audit sink ---
	var (
		stores service.Stores
		sink   ports.AuthEventRepository = discardRepository{}
	)
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, AppName: "identity"})
		if err != nil {
			return err
		}
		defer func() {
			if err := mongo.Disconnect(client); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect failed")
			}
		}()

		users, admins := mongo.NewUserStore(db), mongo.NewAdminStore(db)
		events := mongo.NewEventRepository(db)
		for _, ensure := range []func(context.Context) error{users.EnsureIndexes, admins.EnsureIndexes, events.EnsureIndexes} {
			if err := ensure(ctx); err != nil {
				return err
			}
		}
		stores = service.NewStores(users, admins)
		sink = events
		checks["mongodb"] = func(ctx context.Context) error { return mongo.Ping(ctx, db) }
		log.Info().Str("database", cfg.Mongo.Database).Msg("using mongo credential stores")
	default:
		stores = service.NewStores(memory.NewCredentialStore(domain.KindUser), memory.NewCredentialStore(domain.KindAdmin))
		log.Warn().Msg("using in-memory credential stores; data is lost on restart")
	}

	// --- Rate limiter counters ---
	var counters ports.CounterStore
	switch cfg.RateLimitStore {
	case config.DriverRedis:
		rdb, err := redis.Connect(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MasterName: cfg.Redis.MasterName,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		counters = redis.NewCounterStore(rdb, "rl", clock)
		checks["redis"] = func(ctx context.Context) error { return redis.Ping(ctx, rdb) }
	default:
		counters = memory.NewCounterStore(clock)
	}

	// --- Audit pipeline ---
	dispatcher := queue.NewDispatcher(cfg.AuditWorkers, sink, log)
	// workers outlive the signal context so Stop can drain them
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	// --- Core services ---
	issuer, err := service.NewTokenIssuer(service.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	}, clock)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(service.AuthDeps{
		Stores: stores,
		Issuer: issuer,
		Lockout: service.NewLockoutTracker(domain.LockoutPolicy{
			MaxAttempts: cfg.Lockout.MaxAttempts,
			Duration:    cfg.Lockout.Duration,
		}, clock),
		Limiter: service.NewRateLimiter(counters, service.RateLimitPolicy{
			Window: cfg.RateLimit.Window,
			Max:    cfg.RateLimit.Max,
		}, "login:", clock, log),
		Audit:  metrics.Publisher{Next: dispatcher},
		Clock:  clock,
		Logger: log,
	})

	if cfg.Bootstrap.AdminEmail != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
			return err
		}
	}

	e := api.NewRouter(api.Deps{
		Auth:       authService,
		Verifier:   service.NewVerifier(stores, issuer, clock),
		Policy:     domain.DefaultPolicy(),
		Checks:     checks,
		Logger:     log,
		TrustProxy: cfg.TrustProxy,
	})

	// --- Serve until signalled ---
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// discardRepository drops audit events when no persistent store is configured;
// metrics still see them through the publisher.
type discardRepository struct{}

func (discardRepository) InsertEvent(context.Context, *domain.AuthEvent) error { return nil }
