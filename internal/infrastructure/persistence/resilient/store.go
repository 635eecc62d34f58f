// Package resilient wraps store collaborators with bounded exponential
// backoff. Only shared.ErrTransientStore failures are retried; everything
// else, including NotFound and Conflict, is returned on the first attempt.
package resilient

import (
	"context"
	"log/slog"
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/market"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/pkg/retry"
)

// NewRetrier returns the retrier used for store calls, logging each retry.
func NewRetrier(logger *slog.Logger, opts ...retry.Option) *retry.Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	onRetry := retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying store call",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	})
	return retry.DatabaseRetrier(shared.IsRetryable, append([]retry.Option{onRetry}, opts...)...)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT STORE
// ══════════════════════════════════════════════════════════════════════════════

// AccountStore retries transient failures of the wrapped account store.
type AccountStore struct {
	next    account.LifecycleStore
	retrier *retry.Retrier
}

// NewAccountStore wraps next.
func NewAccountStore(next account.LifecycleStore, retrier *retry.Retrier) *AccountStore {
	return &AccountStore{next: next, retrier: retrier}
}

var _ account.LifecycleStore = (*AccountStore)(nil)

func (s *AccountStore) ListUsers(ctx context.Context, offset, limit int) ([]account.UserRecord, error) {
	return retry.DoWithRetrier(ctx, s.retrier, func(ctx context.Context) ([]account.UserRecord, error) {
		return s.next.ListUsers(ctx, offset, limit)
	})
}

func (s *AccountStore) GetUser(ctx context.Context, id string) (*account.UserRecord, error) {
	return retry.DoWithRetrier(ctx, s.retrier, func(ctx context.Context) (*account.UserRecord, error) {
		return s.next.GetUser(ctx, id)
	})
}

func (s *AccountStore) UpdateProgress(ctx context.Context, id string, update account.ProgressUpdate) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.next.UpdateProgress(ctx, id, update)
	})
}

func (s *AccountStore) DeleteUserIdentity(ctx context.Context, userID string) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.next.DeleteUserIdentity(ctx, userID)
	})
}

func (s *AccountStore) DeleteUserProfileDocument(ctx context.Context, profileID string) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.next.DeleteUserProfileDocument(ctx, profileID)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// MARKET STORES
// ══════════════════════════════════════════════════════════════════════════════

// MarketBackend is what the market decorator wraps.
type MarketBackend interface {
	market.TransactionStore
	market.ProductStore
}

// MarketStore retries transient failures of the wrapped market store.
type MarketStore struct {
	next    MarketBackend
	retrier *retry.Retrier
}

// NewMarketStore wraps next.
func NewMarketStore(next MarketBackend, retrier *retry.Retrier) *MarketStore {
	return &MarketStore{next: next, retrier: retrier}
}

var _ MarketBackend = (*MarketStore)(nil)

func (s *MarketStore) GetTransaction(ctx context.Context, id string) (*market.Transaction, error) {
	return retry.DoWithRetrier(ctx, s.retrier, func(ctx context.Context) (*market.Transaction, error) {
		return s.next.GetTransaction(ctx, id)
	})
}

func (s *MarketStore) UpdateTransaction(ctx context.Context, id string, expected market.TransactionStatus, update market.SettlementUpdate) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.next.UpdateTransaction(ctx, id, expected, update)
	})
}

func (s *MarketStore) GetProduct(ctx context.Context, id string) (*market.Product, error) {
	return retry.DoWithRetrier(ctx, s.retrier, func(ctx context.Context) (*market.Product, error) {
		return s.next.GetProduct(ctx, id)
	})
}

func (s *MarketStore) UpdateProductStatus(ctx context.Context, id string, status market.ProductStatus) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.next.UpdateProductStatus(ctx, id, status)
	})
}
