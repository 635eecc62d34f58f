// Package http implements the REST API and payment webhook of the campus
// marketplace core.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/campusmart/campusmart-core/internal/application/command"
	"github.com/campusmart/campusmart-core/internal/application/query"
	"github.com/campusmart/campusmart-core/internal/infrastructure/scheduler"
	"github.com/campusmart/campusmart-core/internal/infrastructure/scheduler/jobs"
	"github.com/campusmart/campusmart-core/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxBodyBytes - request body limit.
	MaxBodyBytes int64

	// RetryAfter - advertised when the rate limit is hit.
	RetryAfter time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute, // manual sweeps hold the connection
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: 1 << 20,
		RetryAfter:   time.Minute,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// SweepRunner runs and reports graduation sweeps.
type SweepRunner interface {
	Sweep(ctx context.Context) (*jobs.SweepReport, error)
	LastReport(ctx context.Context) (*jobs.SweepReport, error)
}

// JobMonitor runs registered jobs on demand and reports their state.
type JobMonitor interface {
	RunNow(ctx context.Context, name string) (*scheduler.JobResult, error)
	GetJobInfo(name string) (*scheduler.JobInfo, error)
	GetHistory(limit int) []scheduler.JobResult
	GetMetrics() *scheduler.SchedulerMetrics
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Standing *query.GetStandingHandler
	GrantXP  *command.GrantXPHandler
	Settle   *command.SettleTransactionHandler
	Sweeper  SweepRunner

	// Jobs is optional; without it only the sweep routes are served.
	Jobs JobMonitor

	Sessions  *handlers.JWTAuth
	AdminKeys *handlers.APIKeyAuth
	Webhooks  *handlers.SignatureVerifier

	// Limiter is optional; without it requests are not rate limited.
	Limiter handlers.Limiter

	// HealthChecker is optional; without it /health always reports healthy.
	HealthChecker handlers.HealthChecker

	Logger  *slog.Logger
	Version string
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	logger     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: chi.NewRouter(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(handlers.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(handlers.SecurityHeadersMiddleware)
	r.Use(handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleHealth)
	r.Get("/live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	r.Route("/api/v1", func(api chi.Router) {
		api.With(s.rateLimit()).Get("/levels/{level}", s.handleGetLevel)

		api.Group(func(authed chi.Router) {
			authed.Use(s.deps.Sessions.Middleware)
			authed.Use(s.rateLimit())
			authed.Get("/me/standing", s.handleGetMyStanding)
			authed.Post("/me/xp-events", s.handleGrantXP)
			authed.With(handlers.RequirePrivileged).Get("/users/{id}/standing", s.handleGetUserStanding)
		})
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Payment Webhooks
	// ─────────────────────────────────────────────────────────────────────────
	r.Post("/webhooks/payments", s.handlePaymentWebhook)

	// ─────────────────────────────────────────────────────────────────────────
	// Internal Jobs (admin API key)
	// ─────────────────────────────────────────────────────────────────────────
	r.Route("/internal/jobs", func(admin chi.Router) {
		admin.Use(s.deps.AdminKeys.Middleware)
		admin.Post("/graduation-sweep", s.handleRunSweep)
		admin.Get("/graduation-sweep/last", s.handleLastSweep)

		if s.deps.Jobs != nil {
			admin.Get("/", s.handleJobHistory)
			admin.Get("/{name}", s.handleGetJob)
			admin.Post("/{name}/run", s.handleRunJob)
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// rateLimit returns a pass-through middleware when no limiter is configured.
func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return handlers.RateLimit(s.deps.Limiter, s.config.RetryAfter, s.logger)
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", handlers.ClientIP(r),
			"request_id", handlers.RequestIDFromContext(r.Context()),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
					"request_id", handlers.RequestIDFromContext(r.Context()),
				)
				handlers.WriteError(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "address", s.config.Address())

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}
