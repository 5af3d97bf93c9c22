// Package main is the entrypoint for the eromap API server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/davlatzoda/eromap/internal/api"
	"github.com/davlatzoda/eromap/internal/api/handler"
	mw "github.com/davlatzoda/eromap/internal/api/middleware"
	"github.com/davlatzoda/eromap/internal/api/response"
	"github.com/davlatzoda/eromap/internal/cache"
	"github.com/davlatzoda/eromap/internal/compute"
	"github.com/davlatzoda/eromap/internal/config"
	"github.com/davlatzoda/eromap/internal/dispatch"
	"github.com/davlatzoda/eromap/internal/planner"
	"github.com/davlatzoda/eromap/internal/rusle"
	"github.com/davlatzoda/eromap/internal/store"
	"github.com/davlatzoda/eromap/internal/tiles"
	"github.com/davlatzoda/eromap/pkg/models"
	"github.com/google/uuid"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env,
		"year_window", fmt.Sprintf("%d-%d", cfg.Rusle.StartYear, cfg.Rusle.EndYear))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and compute client
	pgStore := store.NewPostgresStore(pool)
	engine := compute.NewHTTPClient(cfg.Compute.BaseURL, cfg.Compute.Timeout)

	if err := engine.Health(ctx); err != nil {
		// The engine may come up after us; dispatches will fail until then.
		slog.Warn("compute engine not reachable at startup", "error", err)
	}

	if err := bootstrapAdminKey(ctx, pgStore); err != nil {
		return fmt.Errorf("bootstrap admin key: %w", err)
	}

	// 6. Wire the orchestration core
	defaults := rusle.NewDefaults()
	artifacts := dispatch.DiskChecker{Root: cfg.Storage.TileRoot}
	gate := dispatch.NewGate(pgStore, engine, defaults, artifacts,
		cfg.Rusle.StartYear, cfg.Rusle.EndYear, slog.Default())
	lifecycle := dispatch.NewLifecycle(pgStore, slog.Default())
	plan := planner.New(pgStore, gate, cfg.Rusle.StartYear, cfg.Rusle.EndYear,
		cfg.Rusle.JobDuration, slog.Default())
	tileServer := tiles.NewServer(cfg.Storage.TileRoot)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute),

		HealthHandler: healthHandler(pgStore, redisCache, engine),

		CheckAvailability: handler.NewCheckAvailabilityHandler(gate),
		TaskStatusHandler: handler.NewTaskStatusHandler(pgStore, redisCache),
		TileHandler:       handler.NewTileHandler(tileServer),

		TaskStartedHandler:   handler.NewTaskStartedHandler(lifecycle),
		TaskCompletedHandler: handler.NewTaskCompletedHandler(lifecycle),
		TaskFailedHandler:    handler.NewTaskFailedHandler(lifecycle),

		PrecomputeHandler: handler.NewPrecomputeHandler(plan),
		CacheClearHandler: handler.NewCacheClearHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// bootstrapAdminKey creates an initial admin API key on a fresh
// database. The raw key is logged exactly once; only its bcrypt hash is
// stored, so losing the log line means creating a new key.
func bootstrapAdminKey(ctx context.Context, s store.Store) error {
	count, err := s.CountAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("count api keys: %w", err)
	}
	if count > 0 {
		return nil
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate key material: %w", err)
	}
	rawKey := "em_" + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "bootstrap-admin",
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    []string{"admin"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	slog.Info("created bootstrap admin API key; store it now, it will not be shown again",
		"api_key", rawKey)
	return nil
}

// healthHandler checks database, cache and compute engine connectivity.
func healthHandler(s store.Store, c cache.Cache, engine compute.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"engine":   "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := engine.Health(r.Context()); err != nil {
			checks["engine"] = "degraded"
		}

		// The engine being down degrades new dispatches but cached layers
		// still serve, so only the hard dependencies gate the status code.
		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
