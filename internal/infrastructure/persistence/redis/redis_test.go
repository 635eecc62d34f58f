package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/pkg/circuitbreaker"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client), mr
}

func TestCache_SetGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	type doc struct {
		Name string `json:"name"`
	}
	require.NoError(t, cache.Set(ctx, "k", doc{Name: "x"}, time.Minute))

	var got doc
	require.NoError(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, "x", got.Name)

	assert.ErrorIs(t, cache.Get(ctx, "missing", &got), ErrCacheMiss)
	assert.ErrorIs(t, cache.Set(ctx, "", doc{}, 0), ErrCacheKeyEmpty)
}

func TestSweepLock_ExcludesSecondHolder(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	lock := NewSweepLock(cache, "graduation_sweep", time.Minute)

	release, err := lock.Acquire(ctx)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx)
	assert.ErrorIs(t, err, shared.ErrSweepInProgress)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(LockKey("graduation_sweep")))

	release2, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

func TestSweepLock_ReleaseKeepsForeignToken(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	lock := NewSweepLock(cache, "graduation_sweep", time.Minute)

	release, err := lock.Acquire(ctx)
	require.NoError(t, err)

	// Our TTL expired and another process took over.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set(LockKey("graduation_sweep"), "someone-else"))

	require.NoError(t, release(ctx))
	got, err := mr.Get(LockKey("graduation_sweep"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestReportStore(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	type report struct {
		RunID   string   `json:"run_id"`
		Deleted []string `json:"deleted"`
	}
	store := NewReportStore[report](cache, "graduation_sweep", 0)

	_, err := store.Last(ctx)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, store.Save(ctx, report{RunID: "r1", Deleted: []string{"u1"}}))
	got, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, []string{"u1"}, got.Deleted)
}

func TestRateLimiter(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	limiter := NewRateLimiter(cache, 2, time.Minute)
	limiter.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = limiter.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_BreakerFailsOpenWithoutRedis(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	cb := circuitbreaker.New("redis", circuitbreaker.WithFailureThreshold(2))
	limiter := NewRateLimiter(cache, 1, time.Minute).WithBreaker(cb)

	mr.SetError("ERR server unavailable")
	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "user-1")
		assert.Error(t, err)
		assert.True(t, ok)
	}
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	ok, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, cb.Counts().Requests)
}
