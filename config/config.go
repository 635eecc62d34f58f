// Package config loads application settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata" // containers ship without zoneinfo

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/scheduler"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	Auth          AuthConfig
	Progression   ProgressionConfig
	Rewards       RewardsConfig
	Sweep         SweepConfig
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `env:"APP_NAME" envDefault:"campusmart-core"`
	Environment Environment `env:"APP_ENV" envDefault:"development"`
	Version     string      `env:"APP_VERSION" envDefault:"dev"`

	// Timezone of the campus day: daily rewards and the sweep cron use it.
	Timezone string `env:"APP_TIMEZONE" envDefault:"Asia/Almaty"`
	location *time.Location

	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL selects the
// in-memory store, which is refused in production.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConns        int32         `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DATABASE_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DATABASE_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"DATABASE_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE" envDefault:"true"`

	// Retry of transient store errors at the store boundary.
	RetryAttempts     int           `env:"DATABASE_RETRY_ATTEMPTS" envDefault:"4"`
	RetryInitialDelay time.Duration `env:"DATABASE_RETRY_INITIAL_DELAY" envDefault:"200ms"`
	RetryMaxDelay     time.Duration `env:"DATABASE_RETRY_MAX_DELAY" envDefault:"5s"`
}

// RedisConfig holds Redis settings. Redis carries the sweep lock, the last
// sweep report and rate limits; without it the API runs single-instance.
type RedisConfig struct {
	URL      string `env:"REDIS_URL"`
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	Disabled bool   `env:"REDIS_DISABLED" envDefault:"false"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Host               string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port               int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout        time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout       time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15m"`
	IdleTimeout        time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxBodyBytes       int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
	RateLimitPerMinute int           `env:"HTTP_RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

// AuthConfig holds session, admin and webhook secrets.
type AuthConfig struct {
	JWTSecret string        `env:"AUTH_JWT_SECRET"`
	JWTIssuer string        `env:"AUTH_JWT_ISSUER" envDefault:"campusmart"`
	TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h"`

	// AdminKeyHashes are bcrypt hashes of the admin API keys.
	AdminKeyHashes []string `env:"AUTH_ADMIN_KEY_HASHES" envSeparator:";"`
	AdminKeyHeader string   `env:"AUTH_ADMIN_KEY_HEADER" envDefault:"X-Admin-Key"`

	WebhookSecret string `env:"AUTH_WEBHOOK_SECRET"`
}

// ProgressionConfig holds the graduation and commission rules.
type ProgressionConfig struct {
	GraduationPeriodYears      float64 `env:"GRADUATION_PERIOD_YEARS" envDefault:"4"`
	ProtocolThresholdYears     float64 `env:"GRADUATION_PROTOCOL_THRESHOLD_YEARS" envDefault:"3.5"`
	CommissionStartRate        float64 `env:"COMMISSION_START_RATE" envDefault:"0.1132"`
	CommissionMinRate          float64 `env:"COMMISSION_MIN_RATE" envDefault:"0.0534"`
	CommissionBreakpointsValue string  `env:"COMMISSION_BREAKPOINTS" envDefault:"1:0.1132,7:0.1036,20:0.1000,50:0.0800,100:0.0534"`
}

// RewardsConfig holds XP amounts per reward kind.
type RewardsConfig struct {
	DailyLoginXP    int `env:"REWARDS_DAILY_LOGIN_XP" envDefault:"10"`
	DailyQuestXP    int `env:"REWARDS_DAILY_QUEST_XP" envDefault:"25"`
	ListingPostedXP int `env:"REWARDS_LISTING_POSTED_XP" envDefault:"15"`
}

// SweepConfig holds graduation sweep settings.
type SweepConfig struct {
	Enabled             bool          `env:"SWEEP_ENABLED" envDefault:"true"`
	Cron                string        `env:"SWEEP_CRON" envDefault:"0 3 * * *"`
	PageSize            int           `env:"SWEEP_PAGE_SIZE" envDefault:"100"`
	ProtectedRolesValue string        `env:"SWEEP_PROTECTED_ROLES" envDefault:"staff,developer"`
	RecordTimeout       time.Duration `env:"SWEEP_RECORD_TIMEOUT" envDefault:"30s"`
	LockTTL             time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"30m"`
	ReportTTL           time.Duration `env:"SWEEP_REPORT_TTL" envDefault:"720h"`
}

// ObservabilityConfig holds logging, error reporting and tracing settings.
type ObservabilityConfig struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is json or text; empty picks JSON in production.
	LogFormat string `env:"LOG_FORMAT"`

	RollbarToken      string `env:"ROLLBAR_TOKEN"`
	RollbarServerRoot string `env:"ROLLBAR_SERVER_ROOT" envDefault:"github.com/campusmart/campusmart-core"`

	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_ENDPOINT"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Load reads .env (outside production) and the process environment.
func Load() (*Config, error) {
	if Environment(os.Getenv("APP_ENV")) != EnvProduction {
		// A missing .env is normal.
		_ = godotenv.Load()
	}
	return LoadFrom(nil)
}

// LoadFrom parses configuration from environ, or from the process
// environment when environ is nil, and validates it.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
// It also resolves the timezone.
func (c *Config) Validate() error {
	var errs []error

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be development, staging or production, got %q", c.App.Environment))
	}

	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	} else {
		c.App.location = loc
	}

	if c.IsProduction() {
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in production"))
		}
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 32 bytes in production"))
		}
		if c.Auth.WebhookSecret == "" {
			errs = append(errs, errors.New("AUTH_WEBHOOK_SECRET is required in production"))
		}
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}

	if c.Database.RetryAttempts < 1 {
		errs = append(errs, errors.New("DATABASE_RETRY_ATTEMPTS must be >= 1"))
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT must be 1-65535, got %d", c.HTTP.Port))
	}

	if _, err := c.Progression.GraduationClock(); err != nil {
		errs = append(errs, fmt.Errorf("GRADUATION_*: %w", err))
	}
	if _, err := c.Progression.CommissionCalculator(); err != nil {
		errs = append(errs, fmt.Errorf("COMMISSION_*: %w", err))
	}
	if c.Rewards.DailyLoginXP < 0 || c.Rewards.DailyQuestXP < 0 || c.Rewards.ListingPostedXP < 0 {
		errs = append(errs, errors.New("REWARDS_* amounts must be >= 0"))
	}

	if c.Sweep.PageSize < 1 {
		errs = append(errs, fmt.Errorf("SWEEP_PAGE_SIZE must be >= 1, got %d", c.Sweep.PageSize))
	}
	if _, err := c.Sweep.ProtectedRoles(); err != nil {
		errs = append(errs, fmt.Errorf("SWEEP_PROTECTED_ROLES: %w", err))
	}
	if _, err := scheduler.ParseSchedule(c.Sweep.Cron); err != nil {
		errs = append(errs, fmt.Errorf("SWEEP_CRON: %w", err))
	}
	if c.Sweep.RecordTimeout <= 0 {
		errs = append(errs, errors.New("SWEEP_RECORD_TIMEOUT must be positive"))
	}
	if c.Sweep.LockTTL <= 0 {
		errs = append(errs, errors.New("SWEEP_LOCK_TTL must be positive"))
	}

	if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be within [0, 1]"))
	}

	return errors.Join(errs...)
}

// Location returns the resolved timezone, UTC before Validate.
func (a AppConfig) Location() *time.Location {
	if a.location == nil {
		return time.UTC
	}
	return a.location
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// ══════════════════════════════════════════════════════════════════════════════
// DERIVED VALUES
// ══════════════════════════════════════════════════════════════════════════════

// GraduationClock builds the clock from the configured durations.
func (p ProgressionConfig) GraduationClock() (*progression.GraduationClock, error) {
	return progression.NewGraduationClock(p.GraduationPeriodYears, p.ProtocolThresholdYears)
}

// CommissionCalculator builds the calculator from the configured table.
func (p ProgressionConfig) CommissionCalculator() (*progression.CommissionCalculator, error) {
	bps, err := progression.ParseBreakpoints(p.CommissionBreakpointsValue)
	if err != nil {
		return nil, err
	}
	return progression.NewCommissionCalculator(p.CommissionStartRate, p.CommissionMinRate, bps)
}

// Table returns the reward table.
func (r RewardsConfig) Table() progression.RewardTable {
	return progression.RewardTable{
		DailyLogin:    r.DailyLoginXP,
		DailyQuest:    r.DailyQuestXP,
		ListingPosted: r.ListingPostedXP,
	}
}

// ProtectedRoles parses the protected role list.
func (s SweepConfig) ProtectedRoles() ([]shared.Role, error) {
	return shared.ParseRoles(s.ProtectedRolesValue)
}
