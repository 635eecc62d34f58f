package redis

import (
	"context"
	"errors"
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// ReportStore keeps the latest report of a job as JSON.
type ReportStore[T any] struct {
	cache *Cache
	key   string
	ttl   time.Duration
}

// NewReportStore creates a store for job's report. ttl 0 keeps it forever.
func NewReportStore[T any](cache *Cache, job string, ttl time.Duration) *ReportStore[T] {
	return &ReportStore[T]{
		cache: cache,
		key:   SweepReportKey(job),
		ttl:   ttl,
	}
}

// Save overwrites the stored report.
func (s *ReportStore[T]) Save(ctx context.Context, report T) error {
	if err := s.cache.Set(ctx, s.key, report, s.ttl); err != nil {
		return shared.WrapError("sweep", "SaveReport", shared.ErrTransientStore, "redis write failed", err)
	}
	return nil
}

// Last returns the stored report or shared.ErrNotFound.
func (s *ReportStore[T]) Last(ctx context.Context) (T, error) {
	var report T
	err := s.cache.Get(ctx, s.key, &report)
	switch {
	case err == nil:
		return report, nil
	case errors.Is(err, ErrCacheMiss):
		return report, shared.NewDomainError("sweep", "LastReport", shared.ErrNotFound, "no sweep has completed yet")
	default:
		return report, shared.WrapError("sweep", "LastReport", shared.ErrTransientStore, "redis read failed", err)
	}
}
