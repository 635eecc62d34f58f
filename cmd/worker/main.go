// Package main is the entry point of the campusmart-core background worker.
//
// The worker runs scheduled maintenance jobs, currently the graduation
// sweep that removes accounts past the graduation period. Overlapping runs
// across worker and API instances are prevented by the Redis sweep lock.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/campusmart/campusmart-core/config"
	"github.com/campusmart/campusmart-core/internal/bootstrap"
)

const serviceName = "campusmart-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
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
	log.Info("starting campusmart worker",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Stores, caches and jobs
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

	if app.Cache == nil {
		log.Warn("running without Redis: sweeps are not coordinated across instances")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	sched := app.Scheduler
	if cfg.Sweep.Enabled {
		log.Info("graduation sweep scheduled", "schedule", cfg.Sweep.Cron)
	} else {
		log.Warn("graduation sweep disabled")
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, waiting for running jobs")

	if err := sched.Stop(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	log.Info("shutdown completed")
	return nil
}
