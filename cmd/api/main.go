package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"golang.org/x/time/rate"

	"github.com/geocoder89/tourhub/internal/auth"
	"github.com/geocoder89/tourhub/internal/cache"
	"github.com/geocoder89/tourhub/internal/config"
	"github.com/geocoder89/tourhub/internal/db"
	"github.com/geocoder89/tourhub/internal/domain/user"
	httpx "github.com/geocoder89/tourhub/internal/http"
	"github.com/geocoder89/tourhub/internal/http/handlers"
	"github.com/geocoder89/tourhub/internal/http/middlewares"
	"github.com/geocoder89/tourhub/internal/notifications"
	"github.com/geocoder89/tourhub/internal/observability"
	"github.com/geocoder89/tourhub/internal/query"
	"github.com/geocoder89/tourhub/internal/repo/memory"
	"github.com/geocoder89/tourhub/internal/repo/mongodb"
	"github.com/geocoder89/tourhub/internal/repo/postgres"
	"github.com/geocoder89/tourhub/internal/security"
)

// userStore is what both the auth service and the user endpoints need.
type userStore interface {
	auth.UserStore
	query.Queryable[user.User]
}

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		observability.LogError(context.Background(), log, "api exited", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	startCtx, cancelStart := config.WithTimeout(15 * time.Second)
	defer cancelStart()

	shutdownTracer, err := observability.InitTracer(startCtx, "tourhub-api", cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	// document store
	mongoClient, err := mongodb.Connect(startCtx, cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	mdb := mongoClient.Database(cfg.Mongo.Database)

	if err := mongodb.EnsureIndexes(startCtx, mdb); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	health := map[string]handlers.Pinger{
		"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, readpref.Primary()) },
	}

	// credential store
	var (
		users userStore
		pool  *pgxpool.Pool
	)
	switch cfg.UserStore {
	case config.UserStorePostgres:
		pool, err = db.NewPool(cfg.DBURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.Migrate(cfg.DBURL); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		users = postgres.NewUsersRepo(pool, prom)
		health["postgres"] = pool.Ping
	case config.UserStoreMemory:
		users = memory.NewUsersRepo()
	default:
		users = mongodb.NewUsersRepo(mdb, prom)
	}
	log.Info("credential store ready", "driver", cfg.UserStore)

	hasher, err := security.NewBcryptHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	created, err := db.EnsureAdminUser(startCtx, users, hasher, cfg.Admin)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Info("admin user created", "email", user.NormalizeEmail(cfg.Admin.Email))
	}

	// list cache
	var (
		listCache cache.Store
		rdb       *redis.Client
	)
	switch cfg.Cache.Driver {
	case config.CacheRedis:
		rdb = cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisCache := cache.NewRedis(rdb, cfg.Cache.TTL)
		listCache = redisCache
		health["redis"] = redisCache.Ping
	default:
		listCache = cache.NewMemory(cfg.Cache.TTL)
	}

	notifier := notifications.NewProtectedNotifier(
		notifications.NewRetryNotifier(
			notifications.NewLogNotifier(log, notifications.LogNotifierConfig{SimulateFailure: cfg.Notifier.SimulateFailure}),
			notifications.RetryConfig{Retries: cfg.Notifier.Retries},
		),
		notifications.ProtectedNotifierConfig{Timeout: cfg.Notifier.Timeout},
	)

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiresIn, auth.SystemClock{})
	if err != nil {
		return err
	}

	authSvc, err := auth.NewService(auth.Deps{
		Users:    users,
		Hasher:   hasher,
		Tokens:   tokens,
		Notifier: notifier,
		Logger:   log,
		Metrics:  prom,
	}, auth.Config{ResetTokenTTL: cfg.Auth.ResetTokenTTL})
	if err != nil {
		return err
	}

	limiter := middlewares.NewRateLimiter(middlewares.RateLimiterConfig{
		Rate:  rate.Limit(cfg.RateLimit.RPS),
		Burst: cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	router := httpx.NewRouter(httpx.RouterDeps{
		Log:         log,
		Env:         cfg.Env,
		Auth:        authSvc,
		Users:       users,
		Tours:       mongodb.NewToursRepo(mdb, prom),
		Reviews:     mongodb.NewReviewsRepo(mdb, prom),
		Cache:       listCache,
		Builder:     query.NewBuilder(query.Options{LegacySingleOperator: cfg.QueryLegacySingleOperator}),
		Prom:        prom,
		Gatherer:    reg,
		Health:      health,
		AuthLimiter: limiter,
		CORSOrigins: cfg.CORSOrigins,

		MaxBodyBytes: cfg.MaxBodyBytes,
		Cookie: handlers.CookieConfig{
			Name:   "jwt",
			MaxAge: cfg.Auth.CookieExpiresIn,
			Secure: cfg.IsProd(),
		},
		PublicBaseURL: cfg.PublicBaseURL,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("server shutting down")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := mongoClient.Disconnect(ctx); err != nil {
			log.Error("mongo disconnect failed", "err", err)
		}
		if pool != nil {
			pool.Close()
		}
		if rdb != nil {
			_ = rdb.Close()
		}
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}

	return nil
}
