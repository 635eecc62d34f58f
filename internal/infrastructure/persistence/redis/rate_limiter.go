package redis

import (
	"context"
	"time"

	"github.com/campusmart/campusmart-core/pkg/circuitbreaker"
)

// RateLimiter counts requests per identifier in fixed windows.
type RateLimiter struct {
	cache   *Cache
	limit   int64
	window  time.Duration
	breaker *circuitbreaker.CircuitBreaker
	now     func() time.Time
}

// NewRateLimiter allows limit requests per identifier per window.
func NewRateLimiter(cache *Cache, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		cache:  cache,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// WithBreaker guards Redis calls with cb. While the circuit is open every
// request is allowed without touching Redis.
func (r *RateLimiter) WithBreaker(cb *circuitbreaker.CircuitBreaker) *RateLimiter {
	r.breaker = cb
	return r
}

// Allow increments the counter for identifier and reports whether the
// request fits in the current window. Redis errors fail open.
func (r *RateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	if r.breaker == nil {
		return r.allow(ctx, identifier)
	}

	allowed := true
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		allowed, err = r.allow(ctx, identifier)
		return err
	})
	if circuitbreaker.IsRejected(err) {
		return true, nil
	}
	return allowed, err
}

func (r *RateLimiter) allow(ctx context.Context, identifier string) (bool, error) {
	slot := r.now().UnixNano() / int64(r.window)
	key := RateLimitKey(identifier, slot)

	pipe := r.cache.Client().TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	return incr.Val() <= r.limit, nil
}
