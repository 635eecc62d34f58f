// Package main is the entry point of the campusmart-core HTTP API.
//
// The API serves account standing, XP grants, payment webhooks and the
// manual graduation sweep trigger.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusmart/campusmart-core/config"
	"github.com/campusmart/campusmart-core/internal/bootstrap"
	httpserver "github.com/campusmart/campusmart-core/internal/interface/http"
	"github.com/campusmart/campusmart-core/internal/interface/http/handlers"
)

const serviceName = "campusmart-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg, serviceName)
	slog.SetDefault(log)
	log.Info("starting campusmart API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Stores, caches and handlers
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			log.Warn("failed to release resources", "error", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Health checks
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if app.DB != nil {
		health.AddCheck("postgres", handlers.PingCheck(app.DB))
	}
	if app.Cache != nil {
		health.AddCheck("redis", handlers.PingCheck(app.Cache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.RetryAfter = time.Minute

	deps := httpserver.Dependencies{
		Standing:      app.Standing,
		GrantXP:       app.GrantXP,
		Settle:        app.Settle,
		Sweeper:       app.Sweep,
		Jobs:          app.Scheduler,
		Sessions:      handlers.NewJWTAuth(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL),
		AdminKeys:     handlers.NewAPIKeyAuth(cfg.Auth.AdminKeyHeader, cfg.Auth.AdminKeyHashes),
		Webhooks:      handlers.NewSignatureVerifier(cfg.Auth.WebhookSecret),
		HealthChecker: health,
		Logger:        log,
		Version:       cfg.App.Version,
	}
	if app.Limiter != nil {
		deps.Limiter = app.Limiter
	}

	server := httpserver.NewServer(httpCfg, deps)
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("shutdown completed")
	return nil
}
