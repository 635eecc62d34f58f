// Package market holds marketplace transactions and products as seen by the
// settlement handler.
package market

import (
	"context"
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// TransactionStatus moves strictly forward:
// initiated -> payment_confirmed_to_developer -> commission_deducted.
type TransactionStatus string

const (
	StatusInitiated          TransactionStatus = "initiated"
	StatusPaymentConfirmed   TransactionStatus = "payment_confirmed_to_developer"
	StatusCommissionDeducted TransactionStatus = "commission_deducted"
)

// IsValid checks if the status is known.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusInitiated, StatusPaymentConfirmed, StatusCommissionDeducted:
		return true
	}
	return false
}

// Transaction is a marketplace purchase or rental.
type Transaction struct {
	ID        string            `json:"id" validate:"required"`
	Amount    shared.Money      `json:"amount" validate:"gte=0"`
	Status    TransactionStatus `json:"status" validate:"required,oneof=initiated payment_confirmed_to_developer commission_deducted"`
	ProductID string            `json:"product_id" validate:"required"`
	SellerID  string            `json:"seller_id" validate:"required"`
	BuyerID   string            `json:"buyer_id"`

	CommissionRate   float64      `json:"commission_rate,omitempty"`
	CommissionAmount shared.Money `json:"commission_amount,omitempty"`
	NetSellerAmount  shared.Money `json:"net_seller_amount,omitempty"`
	SettledAt        *time.Time   `json:"settled_at,omitempty"`
}

// SettlementUpdate is written when commission is deducted.
type SettlementUpdate struct {
	Status           TransactionStatus
	CommissionRate   float64
	CommissionAmount shared.Money
	NetSellerAmount  shared.Money
	SettledAt        time.Time
}

// ProductType decides the terminal product status.
type ProductType string

const (
	ProductSell ProductType = "sell"
	ProductRent ProductType = "rent"
)

// ProductStatus of a listing.
type ProductStatus string

const (
	ProductAvailable ProductStatus = "available"
	ProductSold      ProductStatus = "sold"
	ProductRented    ProductStatus = "rented"
)

// Product is a marketplace listing.
type Product struct {
	ID     string        `json:"id" validate:"required"`
	Type   ProductType   `json:"type" validate:"required,oneof=sell rent"`
	Status ProductStatus `json:"status" validate:"required,oneof=available sold rented"`

	// UpdatedAt is when Status was last written. Zero when unknown.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ChangedSince reports whether the status was written after t. Products
// without a recorded update time count as unchanged.
func (p *Product) ChangedSince(t time.Time) bool {
	return !p.UpdatedAt.IsZero() && p.UpdatedAt.After(t)
}

// SettledStatus returns the status a product takes once its transaction settles.
func (p *Product) SettledStatus() (ProductStatus, error) {
	switch p.Type {
	case ProductSell:
		return ProductSold, nil
	case ProductRent:
		return ProductRented, nil
	}
	return "", shared.InvalidArgument("market", "SettledStatus", "unknown product type %q", p.Type)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// TransactionStore reads and conditionally updates transactions.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// UpdateTransaction applies update only while the stored status equals
	// expected. A mismatch returns shared.ErrConflict.
	UpdateTransaction(ctx context.Context, id string, expected TransactionStatus, update SettlementUpdate) error
}

// ProductStore reads and updates products.
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	UpdateProductStatus(ctx context.Context, id string, status ProductStatus) error
}
