package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

func baseEnv() map[string]string {
	return map[string]string{"AUTH_JWT_SECRET": "dev-secret"}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, "Asia/Almaty", cfg.App.Location().String())

	assert.Equal(t, 4.0, cfg.Progression.GraduationPeriodYears)
	assert.Equal(t, 3.5, cfg.Progression.ProtocolThresholdYears)
	assert.Equal(t, 0.1132, cfg.Progression.CommissionStartRate)
	assert.Equal(t, 0.0534, cfg.Progression.CommissionMinRate)

	assert.Equal(t, "0 3 * * *", cfg.Sweep.Cron)
	assert.Equal(t, 100, cfg.Sweep.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Sweep.RecordTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Sweep.LockTTL)

	roles, err := cfg.Sweep.ProtectedRoles()
	require.NoError(t, err)
	assert.Equal(t, []shared.Role{shared.RoleStaff, shared.RoleDeveloper}, roles)

	calc, err := cfg.Progression.CommissionCalculator()
	require.NoError(t, err)
	assert.InDelta(t, 0.1036, calc.RateForLevel(7), 1e-9)

	clock, err := cfg.Progression.GraduationClock()
	require.NoError(t, err)
	assert.Equal(t, progression.DefaultGraduationClock().Period(), clock.Period())

	assert.Equal(t, 15, cfg.Rewards.Table().ListingPosted)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoadFrom_Overrides(t *testing.T) {
	environ := baseEnv()
	environ["SWEEP_PAGE_SIZE"] = "25"
	environ["SWEEP_PROTECTED_ROLES"] = "developer"
	environ["SWEEP_CRON"] = "@every 6h"
	environ["AUTH_ADMIN_KEY_HASHES"] = "$2a$10$abc;$2a$10$def"
	environ["COMMISSION_BREAKPOINTS"] = "1:0.1132,100:0.0534"

	cfg, err := LoadFrom(environ)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Sweep.PageSize)
	assert.Equal(t, []string{"$2a$10$abc", "$2a$10$def"}, cfg.Auth.AdminKeyHashes)

	calc, err := cfg.Progression.CommissionCalculator()
	require.NoError(t, err)
	assert.InDelta(t, 0.1132, calc.RateForLevel(1), 1e-9)
	assert.InDelta(t, 0.0534, calc.RateForLevel(100), 1e-9)
	assert.Less(t, calc.RateForLevel(50), 0.1132)
}

func TestLoadFrom_CollectsAllErrors(t *testing.T) {
	environ := map[string]string{
		"APP_ENV":                "production",
		"APP_TIMEZONE":           "Mars/Olympus",
		"SWEEP_PAGE_SIZE":        "0",
		"SWEEP_PROTECTED_ROLES":  "staff,janitor",
		"SWEEP_CRON":             "61 * * * *",
		"COMMISSION_BREAKPOINTS": "7:0.2,1:0.1",
	}

	_, err := LoadFrom(environ)
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		"APP_TIMEZONE",
		"DATABASE_URL is required in production",
		"AUTH_JWT_SECRET",
		"AUTH_WEBHOOK_SECRET",
		"SWEEP_PAGE_SIZE",
		"SWEEP_PROTECTED_ROLES",
		"SWEEP_CRON",
		"COMMISSION_",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestLoadFrom_ProductionAcceptsCompleteConfig(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"APP_ENV":             "production",
		"DATABASE_URL":        "postgres://campus:secret@db:5432/campus",
		"AUTH_JWT_SECRET":     "0123456789abcdef0123456789abcdef",
		"AUTH_WEBHOOK_SECRET": "whsec",
	})
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoadFrom_ParseError(t *testing.T) {
	environ := baseEnv()
	environ["SWEEP_RECORD_TIMEOUT"] = "soon"

	_, err := LoadFrom(environ)
	assert.ErrorContains(t, err, "parse env")
}
