package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock is a SET NX lock with a random token and a TTL. The TTL bounds
// how long a crashed holder can block the next run.
type SweepLock struct {
	cache *Cache
	key   string
	ttl   time.Duration
}

// NewSweepLock creates a lock for resource.
func NewSweepLock(cache *Cache, resource string, ttl time.Duration) *SweepLock {
	return &SweepLock{
		cache: cache,
		key:   LockKey(resource),
		ttl:   ttl,
	}
}

// Acquire takes the lock. It returns shared.ErrSweepInProgress when another
// holder owns it, and a release function otherwise.
func (l *SweepLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, shared.WrapError("sweep", "AcquireLock", shared.ErrTransientStore, "redis unavailable", err)
	}
	if !ok {
		return nil, shared.NewDomainError("sweep", "AcquireLock", shared.ErrSweepInProgress,
			fmt.Sprintf("lock %s is held", l.key))
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.cache.Client(), []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", l.key, err)
		}
		return nil
	}
	return release, nil
}
