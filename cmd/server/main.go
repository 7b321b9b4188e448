// Package main is the entrypoint for the attrition prediction API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiranshivaraju/attrition/internal/api"
	"github.com/kiranshivaraju/attrition/internal/api/handler"
	mw "github.com/kiranshivaraju/attrition/internal/api/middleware"
	"github.com/kiranshivaraju/attrition/internal/audit"
	"github.com/kiranshivaraju/attrition/internal/cache"
	"github.com/kiranshivaraju/attrition/internal/config"
	"github.com/kiranshivaraju/attrition/internal/prediction"
	"github.com/kiranshivaraju/attrition/internal/retention"
	"github.com/kiranshivaraju/attrition/internal/store"
)

const dependencyTimeout = 5 * time.Second

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
	// 1. Load config, failing fast when invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "model_path", cfg.Model.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Wire model, audit store, cache and router. Only the model is
	// required for readiness; everything else degrades.
	a := newApp(ctx, cfg)
	defer a.close()

	a.startBackground(ctx)

	// 3. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
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
		a.stopBackground()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.shutdown(shutdownCtx, srv); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

// app is the wired server. Optional dependencies that fail to start are left
// out and logged.
type app struct {
	handler http.Handler
	service *prediction.Service
	audit   *audit.Logger
	sweeper *retention.Sweeper
	closers []func()

	cancelBackground context.CancelFunc
	background       sync.WaitGroup
}

func newApp(ctx context.Context, cfg *config.Config) *app {
	a := &app{audit: audit.Disabled()}

	if pgStore := a.openStore(ctx, cfg); pgStore != nil {
		a.audit = audit.New(pgStore,
			audit.WithQueueSize(cfg.Audit.QueueSize),
			audit.WithWorkers(cfg.Audit.Workers),
		)
		a.sweeper = retention.NewSweeper(pgStore, cfg.Retention.Days, cfg.Retention.SweepInterval)
		slog.Info("audit logging enabled", "retention_days", cfg.Retention.Days)
	} else {
		slog.Info("audit logging disabled")
	}

	opts := []prediction.Option{
		prediction.WithAuditLogger(a.audit),
		prediction.WithBatchMax(cfg.Model.BatchMaxSize),
	}
	var c cache.Cache
	if rc := a.openCache(ctx, cfg); rc != nil {
		c = rc
		opts = append(opts, prediction.WithCache(rc, cfg.Redis.ExplanationCacheTTL))
	}

	a.service = prediction.New(opts...)
	if err := a.service.Load(cfg.Model.Path, cfg.Model.MetadataPath); err != nil {
		slog.Error("model not loaded, serving NOT_READY", "path", cfg.Model.Path, "error", err)
	}

	a.handler = api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(cfg.Auth.APIKeyHash),
		RateLimit: mw.NewRateLimit(c, cfg.Redis.RateLimitPerMinute),

		HealthHandler:    handler.NewHealthHandler(a.service),
		MetricsHandler:   promhttp.Handler(),
		ModelInfoHandler: handler.NewModelInfoHandler(a.service),
		PredictHandler:   handler.NewPredictHandler(a.service),
		BatchHandler:     handler.NewBatchHandler(a.service),
		ExplainHandler:   handler.NewExplainHandler(a.service),
	})
	return a
}

func (a *app) openStore(ctx context.Context, cfg *config.Config) *store.PostgresStore {
	if !cfg.Database.Enabled() {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()
	pool, err := store.Connect(connectCtx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable", "error", err)
		return nil
	}
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		slog.Warn("database migrations failed", "error", err)
		pool.Close()
		return nil
	}
	slog.Info("database connected, migrations applied")

	a.closers = append(a.closers, pool.Close)
	return store.NewPostgresStore(pool)
}

func (a *app) openCache(ctx context.Context, cfg *config.Config) *cache.RedisCache {
	if !cfg.Redis.Enabled() {
		return nil
	}

	rc, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		slog.Warn("redis unavailable, rate limiting and explanation cache disabled", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		slog.Warn("redis unavailable, rate limiting and explanation cache disabled", "error", err)
		rc.Close()
		return nil
	}
	slog.Info("redis connected")

	a.closers = append(a.closers, func() { rc.Close() })
	return rc
}

// startBackground runs the retention sweeper until stopBackground.
func (a *app) startBackground(ctx context.Context) {
	if a.sweeper == nil {
		return
	}
	ctx, a.cancelBackground = context.WithCancel(ctx)
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		a.sweeper.Run(ctx)
	}()
}

func (a *app) stopBackground() {
	if a.cancelBackground != nil {
		a.cancelBackground()
	}
	a.background.Wait()
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops srv, then drains the audit queue and waits for background
// work, whether or not srv stopped cleanly. The pool closers must run after.
func (a *app) shutdown(ctx context.Context, srv shutdowner) error {
	err := srv.Shutdown(ctx)
	if err != nil {
		err = fmt.Errorf("server shutdown: %w", err)
	}
	if cerr := a.audit.Close(ctx); cerr != nil {
		slog.Warn("audit queue not fully drained", "error", cerr)
	}
	a.stopBackground()
	return err
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
