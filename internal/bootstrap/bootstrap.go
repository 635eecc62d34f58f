// Package bootstrap wires stores, caches and handlers from configuration.
// The api and worker processes share it so both see the same stores and
// the same sweep lock.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/campusmart/campusmart-core/config"
	"github.com/campusmart/campusmart-core/internal/application/command"
	"github.com/campusmart/campusmart-core/internal/application/query"
	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/infrastructure/monitoring"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/memory"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/postgres"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/redis"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/resilient"
	"github.com/campusmart/campusmart-core/internal/infrastructure/scheduler"
	"github.com/campusmart/campusmart-core/internal/infrastructure/scheduler/jobs"
	"github.com/campusmart/campusmart-core/internal/infrastructure/telemetry"
	"github.com/campusmart/campusmart-core/pkg/circuitbreaker"
	"github.com/campusmart/campusmart-core/pkg/logger"
	"github.com/campusmart/campusmart-core/pkg/retry"
	"github.com/campusmart/campusmart-core/pkg/timeutil"
)

// App holds everything a process needs.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Accounts account.LifecycleStore
	Market   resilient.MarketBackend

	// DB is nil when running on the in-memory store.
	DB *postgres.Connection

	// Cache and Limiter are nil when Redis is disabled.
	Cache   *redis.Cache
	Limiter *redis.RateLimiter

	Reporter monitoring.Reporter

	Sweep    *jobs.GraduationSweepJob
	Standing *query.GetStandingHandler
	GrantXP  *command.GrantXPHandler
	Settle   *command.SettleTransactionHandler

	// Scheduler has every job registered but is started only by the worker.
	// The api uses it for manual runs and job status.
	Scheduler *scheduler.Scheduler

	closers []func(context.Context) error
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config, service string) *slog.Logger {
	return logger.New(logger.Options{
		Level:   logger.ParseLevel(cfg.Observability.LogLevel),
		Format:  logger.FormatFor(cfg.Observability.LogFormat, string(cfg.App.Environment)),
		Output:  os.Stdout,
		Service: service,
		Version: cfg.App.Version,
	})
}

// New connects to the configured backends and builds the handlers. On error
// everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, service string) (_ *App, err error) {
	if log == nil {
		log = slog.Default()
	}
	app := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	timeutil.SetLocation(cfg.App.Location())

	// ─────────────────────────────────────────────────────────────────────────
	// Observability
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    service,
		ServiceVersion: cfg.App.Version,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	app.closers = append(app.closers, shutdownTracing)

	rb := monitoring.NewRollbar(monitoring.RollbarConfig{
		Token:       cfg.Observability.RollbarToken,
		Environment: string(cfg.App.Environment),
		CodeVersion: cfg.App.Version,
		ServerHost:  service,
		ServerRoot:  cfg.Observability.RollbarServerRoot,
	})
	app.closers = append(app.closers, func(context.Context) error { rb.Close(); return nil })
	app.Reporter = monitoring.Multi{monitoring.NewLogReporter(log), rb}

	// ─────────────────────────────────────────────────────────────────────────
	// Stores
	// ─────────────────────────────────────────────────────────────────────────
	var accounts account.LifecycleStore
	var marketStore resilient.MarketBackend

	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		mem := memory.NewStore()
		accounts, marketStore = mem, mem
	} else {
		dbCfg := postgres.DefaultConfig()
		dbCfg.URL = cfg.Database.URL
		dbCfg.MaxConns = cfg.Database.MaxConns
		dbCfg.MinConns = cfg.Database.MinConns
		dbCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
		dbCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		conn, err := postgres.NewConnection(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		app.DB = conn
		app.closers = append(app.closers, func(context.Context) error { conn.Close(); return nil })

		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		accounts, marketStore = postgres.NewAccountStore(conn), postgres.NewMarketStore(conn)
		log.Info("database connection established")
	}

	retrier := resilient.NewRetrier(log,
		retry.WithMaxAttempts(cfg.Database.RetryAttempts),
		retry.WithInitialDelay(cfg.Database.RetryInitialDelay),
		retry.WithMaxDelay(cfg.Database.RetryMaxDelay),
	)
	app.Accounts = resilient.NewAccountStore(accounts, retrier)
	app.Market = resilient.NewMarketStore(marketStore, retrier)

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.URL = cfg.Redis.URL
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize

		cache, err := redis.NewCache(redisCfg)
		switch {
		case err == nil:
			app.Cache = cache
			app.closers = append(app.closers, func(context.Context) error { return cache.Close() })
			log.Info("redis connection established")

			if cfg.HTTP.RateLimitPerMinute > 0 {
				breaker := circuitbreaker.RedisBreaker(func(name string, from, to circuitbreaker.State) {
					log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
				})
				app.Limiter = redis.NewRateLimiter(cache, cfg.HTTP.RateLimitPerMinute, time.Minute).WithBreaker(breaker)
			}
		case cfg.IsProduction():
			return nil, fmt.Errorf("connect to redis: %w", err)
		default:
			log.Warn("redis unavailable, running without lock and rate limits", "error", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Domain services and handlers
	// ─────────────────────────────────────────────────────────────────────────
	clock, err := cfg.Progression.GraduationClock()
	if err != nil {
		return nil, err
	}
	calculator, err := cfg.Progression.CommissionCalculator()
	if err != nil {
		return nil, err
	}
	protected, err := cfg.Sweep.ProtectedRoles()
	if err != nil {
		return nil, err
	}

	sweepCfg := jobs.GraduationSweepConfig{
		PageSize:       cfg.Sweep.PageSize,
		ProtectedRoles: protected,
		RecordTimeout:  cfg.Sweep.RecordTimeout,
	}
	sweepOpts := []jobs.SweepOption{jobs.WithReporter(app.Reporter)}
	if app.Cache != nil {
		sweepOpts = append(sweepOpts,
			jobs.WithLocker(redis.NewSweepLock(app.Cache, jobs.GraduationSweepJobName, cfg.Sweep.LockTTL)),
			jobs.WithReportStore(redis.NewReportStore[jobs.SweepReport](app.Cache, jobs.GraduationSweepJobName, cfg.Sweep.ReportTTL)),
		)
	}
	app.Sweep = jobs.NewGraduationSweepJob(app.Accounts, clock, log, sweepCfg, sweepOpts...)

	if err := app.buildScheduler(); err != nil {
		return nil, err
	}

	app.Standing = query.NewGetStandingHandler(app.Accounts, calculator, clock, protected)
	app.GrantXP = command.NewGrantXPHandler(app.Accounts, cfg.Rewards.Table(), log)
	app.Settle = command.NewSettleTransactionHandler(app.Market, app.Market, app.Accounts, calculator, app.Reporter, log)

	return app, nil
}

// buildScheduler registers the sweep on its cron schedule. A disabled sweep
// stays registered for manual runs but never fires on its own.
func (a *App) buildScheduler() error {
	a.Scheduler = scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   a.Logger.With("component", "scheduler"),
		Timezone: a.Config.App.Location(),
	})
	a.Scheduler.OnJobError(monitoring.JobErrorHook(a.Reporter))

	schedule, err := scheduler.ParseSchedule(a.Config.Sweep.Cron)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule: %w", err)
	}
	if err := a.Scheduler.Register(a.Sweep, schedule); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	if !a.Config.Sweep.Enabled {
		return a.Scheduler.SetEnabled(a.Sweep.Name(), false)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
