package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusmart/campusmart-core/internal/domain/market"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/docvalidate"
)

// ══════════════════════════════════════════════════════════════════════════════
// MARKET STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// MarketStore implements market.TransactionStore and market.ProductStore.
type MarketStore struct {
	conn *Connection
}

// NewMarketStore creates a new MarketStore.
func NewMarketStore(conn *Connection) *MarketStore {
	return &MarketStore{conn: conn}
}

var (
	_ market.TransactionStore = (*MarketStore)(nil)
	_ market.ProductStore     = (*MarketStore)(nil)
)

// GetTransaction returns a transaction by id.
func (s *MarketStore) GetTransaction(ctx context.Context, id string) (*market.Transaction, error) {
	query := `
		SELECT id, amount, status, product_id, seller_id, buyer_id,
			   COALESCE(commission_rate, 0), COALESCE(commission_amount, 0),
			   COALESCE(net_seller_amount, 0), settled_at
		FROM transactions
		WHERE id = $1`

	var (
		t         market.Transaction
		amount    int64
		status    string
		comm, net int64
		settledAt *time.Time
	)
	err := s.conn.QueryRow(ctx, query, id).Scan(
		&t.ID, &amount, &status, &t.ProductID, &t.SellerID, &t.BuyerID,
		&t.CommissionRate, &comm, &net, &settledAt,
	)
	if err != nil {
		return nil, classify("market", "GetTransaction", err)
	}

	t.Amount = shared.Money(amount)
	t.Status = market.TransactionStatus(status)
	t.CommissionAmount = shared.Money(comm)
	t.NetSellerAmount = shared.Money(net)
	t.SettledAt = settledAt

	if err := docvalidate.Struct("market", "GetTransaction", t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransaction applies update only while the stored status equals expected.
func (s *MarketStore) UpdateTransaction(ctx context.Context, id string, expected market.TransactionStatus, update market.SettlementUpdate) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE transactions SET
				status = $1,
				commission_rate = $2,
				commission_amount = $3,
				net_seller_amount = $4,
				settled_at = $5
			WHERE id = $6 AND status = $7`,
			string(update.Status),
			update.CommissionRate,
			int64(update.CommissionAmount),
			int64(update.NetSellerAmount),
			update.SettledAt,
			id,
			string(expected),
		)
		if err != nil {
			return classify("market", "UpdateTransaction", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		// Distinguish a lost race from a missing row.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return classify("market", "UpdateTransaction", err)
		}
		if !exists {
			return notFound("market", "UpdateTransaction", id)
		}
		return shared.NewDomainError("market", "UpdateTransaction", shared.ErrConflict,
			"transaction "+id+" is no longer "+string(expected))
	})
}

// GetProduct returns a product by id.
func (s *MarketStore) GetProduct(ctx context.Context, id string) (*market.Product, error) {
	var p market.Product
	var typ, status string
	err := s.conn.QueryRow(ctx, `SELECT id, type, status, updated_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &typ, &status, &p.UpdatedAt)
	if err != nil {
		return nil, classify("market", "GetProduct", err)
	}
	p.Type = market.ProductType(typ)
	p.Status = market.ProductStatus(status)

	if err := docvalidate.Struct("market", "GetProduct", p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProductStatus sets the status of a product.
func (s *MarketStore) UpdateProductStatus(ctx context.Context, id string, status market.ProductStatus) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE products SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return classify("market", "UpdateProductStatus", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("market", "UpdateProductStatus", id)
	}
	return nil
}
