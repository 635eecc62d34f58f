package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-core/config"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/scheduler/jobs"
)

func loadConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	environ := map[string]string{
		"AUTH_JWT_SECRET": "test-secret",
		"REDIS_DISABLED":  "true",
	}
	for k, v := range extra {
		environ[k] = v
	}
	cfg, err := config.LoadFrom(environ)
	require.NoError(t, err)
	return cfg
}

func TestNew_InMemoryWithoutRedis(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, nil)

	app, err := New(ctx, cfg, nil, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(ctx) })

	assert.Nil(t, app.DB)
	assert.Nil(t, app.Cache)
	assert.Nil(t, app.Limiter)
	require.NotNil(t, app.Sweep)
	require.NotNil(t, app.Standing)
	require.NotNil(t, app.GrantXP)
	require.NotNil(t, app.Settle)

	report, err := app.Sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)

	last, err := app.Sweep.LastReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, last.RunID)

	_, err = app.Accounts.GetUser(ctx, "nobody")
	assert.True(t, shared.IsNotFound(err))
}

func TestNew_RegistersSweepWithScheduler(t *testing.T) {
	ctx := context.Background()

	app, err := New(ctx, loadConfig(t, map[string]string{"SWEEP_CRON": "0 4 * * *"}), nil, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(ctx) })

	info, err := app.Scheduler.GetJobInfo(jobs.GraduationSweepJobName)
	require.NoError(t, err)
	assert.True(t, info.Enabled)
	assert.Equal(t, "0 4 * * *", info.Schedule)

	disabled, err := New(ctx, loadConfig(t, map[string]string{"SWEEP_ENABLED": "false"}), nil, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = disabled.Close(ctx) })

	info, err = disabled.Scheduler.GetJobInfo(jobs.GraduationSweepJobName)
	require.NoError(t, err)
	assert.False(t, info.Enabled)

	result, err := disabled.Scheduler.RunNow(ctx, jobs.GraduationSweepJobName)
	require.NoError(t, err)
	assert.True(t, result.Manual)
}

func TestNew_WithRedisSharesSweepReports(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, map[string]string{
		"REDIS_DISABLED": "false",
		"REDIS_URL":      "redis://" + mr.Addr(),
	})

	first, err := New(ctx, cfg, nil, "api")
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close(ctx) })
	require.NotNil(t, first.Cache)
	require.NotNil(t, first.Limiter)

	ok, err := first.Limiter.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	second, err := New(ctx, cfg, nil, "worker")
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(ctx) })

	report, err := second.Sweep.Sweep(ctx)
	require.NoError(t, err)

	last, err := first.Sweep.LastReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, last.RunID)
}

func TestNew_RedisUnavailableOutsideProduction(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, map[string]string{
		"REDIS_DISABLED": "false",
		"REDIS_URL":      "redis://127.0.0.1:1",
	})

	app, err := New(ctx, cfg, nil, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(ctx) })
	assert.Nil(t, app.Cache)
}

func TestClose_Idempotent(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, loadConfig(t, nil), nil, "test")
	require.NoError(t, err)

	require.NoError(t, app.Close(ctx))
	require.NoError(t, app.Close(ctx))
}
