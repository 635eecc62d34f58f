// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/market"
	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/monitoring"
	"github.com/campusmart/campusmart-core/internal/infrastructure/telemetry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTLE TRANSACTION COMMAND
// Deducts the platform commission once payment has reached the developer
// account, then marks the product sold or rented.
// ══════════════════════════════════════════════════════════════════════════════

// SettleTransactionCommand identifies the transaction a payment event is about.
// The event payload is not trusted: the transaction is always reloaded.
type SettleTransactionCommand struct {
	TransactionID string
	RequestID     string
}

// Validate validates the command.
func (c SettleTransactionCommand) Validate() error {
	if c.TransactionID == "" {
		return shared.InvalidArgument("settlement", "Validate", "transaction_id is required")
	}
	return nil
}

// SettlementOutcome tells the caller what the handler did.
type SettlementOutcome string

const (
	// SettlementIgnored: the transaction is not yet paid. Nothing changed.
	SettlementIgnored SettlementOutcome = "ignored"

	// SettlementApplied: commission was deducted by this call.
	SettlementApplied SettlementOutcome = "settled"

	// SettlementAlreadyProcessed: commission was deducted earlier, possibly
	// by a concurrent delivery of the same event.
	SettlementAlreadyProcessed SettlementOutcome = "already_processed"
)

// SettleTransactionResult contains the result of settlement.
type SettleTransactionResult struct {
	TransactionID string                   `json:"transaction_id"`
	Outcome       SettlementOutcome        `json:"outcome"`
	Status        market.TransactionStatus `json:"status"`

	SellerLevel      int          `json:"seller_level,omitempty"`
	CommissionRate   float64      `json:"commission_rate,omitempty"`
	CommissionAmount shared.Money `json:"commission_amount,omitempty"`
	NetSellerAmount  shared.Money `json:"net_seller_amount,omitempty"`
	SettledAt        *time.Time   `json:"settled_at,omitempty"`

	ProductID      string               `json:"product_id,omitempty"`
	ProductStatus  market.ProductStatus `json:"product_status,omitempty"`
	ProductUpdated bool                 `json:"product_updated"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// SellerReader loads the seller's record for its level.
type SellerReader interface {
	GetUser(ctx context.Context, id string) (*account.UserRecord, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SettleTransactionHandler handles SettleTransactionCommand.
type SettleTransactionHandler struct {
	transactions market.TransactionStore
	products     market.ProductStore
	sellers      SellerReader
	calculator   *progression.CommissionCalculator
	reporter     monitoring.Reporter
	logger       *slog.Logger
	now          func() time.Time
}

// NewSettleTransactionHandler creates a new SettleTransactionHandler.
// A nil calculator uses the default commission table.
func NewSettleTransactionHandler(
	transactions market.TransactionStore,
	products market.ProductStore,
	sellers SellerReader,
	calculator *progression.CommissionCalculator,
	reporter monitoring.Reporter,
	logger *slog.Logger,
) *SettleTransactionHandler {
	if calculator == nil {
		calculator = progression.DefaultCommissionCalculator()
	}
	if reporter == nil {
		reporter = monitoring.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettleTransactionHandler{
		transactions: transactions,
		products:     products,
		sellers:      sellers,
		calculator:   calculator,
		reporter:     reporter,
		logger:       logger,
		now:          time.Now,
	}
}

// Handle executes the settle transaction command.
//
// When the transaction update succeeds but the product update fails, the
// result is returned together with a shared.ErrPartialFailure error. The
// transaction is not rolled back; a redelivery repairs the product.
func (h *SettleTransactionHandler) Handle(ctx context.Context, cmd SettleTransactionCommand) (*SettleTransactionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "settlement.handle",
		trace.WithAttributes(attribute.String("transaction.id", cmd.TransactionID)))
	defer span.End()

	logger := h.logger.With("transaction_id", cmd.TransactionID, "request_id", cmd.RequestID)

	txn, err := h.transactions.GetTransaction(ctx, cmd.TransactionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &SettleTransactionResult{
		TransactionID: txn.ID,
		Status:        txn.Status,
		ProductID:     txn.ProductID,
	}

	switch txn.Status {
	case market.StatusInitiated:
		result.Outcome = SettlementIgnored
		logger.Info("payment not confirmed yet, ignoring")
		return result, nil

	case market.StatusCommissionDeducted:
		result.Outcome = SettlementAlreadyProcessed
		copySettlement(result, txn)
		return h.finishProduct(ctx, span, logger, result)

	case market.StatusPaymentConfirmed:
		if err := h.deductCommission(ctx, txn, result); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commission deduction failed")
			return nil, err
		}
		if result.Outcome == SettlementApplied {
			logger.Info("commission deducted",
				"seller_id", txn.SellerID,
				"seller_level", result.SellerLevel,
				"rate", result.CommissionRate,
				"commission", result.CommissionAmount,
				"net", result.NetSellerAmount,
			)
		}
		return h.finishProduct(ctx, span, logger, result)
	}

	return nil, shared.InvalidArgument("settlement", "Handle", "unknown transaction status %q", txn.Status)
}

// deductCommission computes the split at the seller's level and writes it
// only if the transaction is still payment_confirmed_to_developer.
func (h *SettleTransactionHandler) deductCommission(ctx context.Context, txn *market.Transaction, result *SettleTransactionResult) error {
	seller, err := h.sellers.GetUser(ctx, txn.SellerID)
	if err != nil {
		return err
	}

	split, err := h.calculator.Split(txn.Amount, seller.Level)
	if err != nil {
		return err
	}

	update := market.SettlementUpdate{
		Status:           market.StatusCommissionDeducted,
		CommissionRate:   split.Rate,
		CommissionAmount: split.Commission,
		NetSellerAmount:  split.Net,
		SettledAt:        h.now().UTC(),
	}

	err = h.transactions.UpdateTransaction(ctx, txn.ID, market.StatusPaymentConfirmed, update)
	switch {
	case err == nil:
		result.Outcome = SettlementApplied
		result.SettledAt = &update.SettledAt
		result.Status = market.StatusCommissionDeducted
		result.SellerLevel = seller.Level
		result.CommissionRate = split.Rate
		result.CommissionAmount = split.Commission
		result.NetSellerAmount = split.Net
		return nil

	case errors.Is(err, shared.ErrConflict):
		// Another delivery won the race. Report what it stored.
		current, getErr := h.transactions.GetTransaction(ctx, txn.ID)
		if getErr != nil {
			return getErr
		}
		result.Outcome = SettlementAlreadyProcessed
		result.Status = current.Status
		copySettlement(result, current)
		return nil

	default:
		return err
	}
}

// finishProduct moves an available product to its settled status. On a
// replay the product is only repaired if nothing wrote its status after the
// settlement; a product written since then was settled and relisted.
func (h *SettleTransactionHandler) finishProduct(
	ctx context.Context,
	span trace.Span,
	logger *slog.Logger,
	result *SettleTransactionResult,
) (*SettleTransactionResult, error) {
	product, err := h.products.GetProduct(ctx, result.ProductID)
	if err == nil {
		result.ProductStatus = product.Status
		if product.Status != market.ProductAvailable {
			return result, nil
		}

		replay := result.Outcome == SettlementAlreadyProcessed
		if replay && result.SettledAt != nil && product.ChangedSince(*result.SettledAt) {
			logger.Info("product relisted since settlement, leaving it available",
				"product_id", product.ID,
				"settled_at", *result.SettledAt,
				"product_updated_at", product.UpdatedAt,
			)
			return result, nil
		}

		var target market.ProductStatus
		target, err = product.SettledStatus()
		if err == nil {
			err = h.products.UpdateProductStatus(ctx, product.ID, target)
		}
		if err == nil {
			result.ProductStatus = target
			result.ProductUpdated = true
			if replay {
				logger.Warn("product status repaired after partial settlement", "product_id", product.ID, "status", target)
			} else {
				logger.Info("product status updated", "product_id", product.ID, "status", target)
			}
			return result, nil
		}
	}

	partial := shared.WrapError("settlement", "UpdateProductStatus", shared.ErrPartialFailure,
		"commission deducted but product status not updated", err)

	span.RecordError(partial)
	span.SetStatus(codes.Error, "product update failed")
	logger.Error("settlement partially applied",
		"product_id", result.ProductID,
		"outcome", string(result.Outcome),
		"error", err,
	)
	h.reporter.Report(ctx, partial, map[string]any{
		"transaction_id": result.TransactionID,
		"product_id":     result.ProductID,
	})

	return result, partial
}

func copySettlement(result *SettleTransactionResult, txn *market.Transaction) {
	result.CommissionRate = txn.CommissionRate
	result.CommissionAmount = txn.CommissionAmount
	result.NetSellerAmount = txn.NetSellerAmount
	result.SettledAt = txn.SettledAt
}
