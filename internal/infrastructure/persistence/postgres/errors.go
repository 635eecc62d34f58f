package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// transientCodes are SQLSTATE codes worth retrying.
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// IsTransient reports whether err is a connection-level or contention failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrConnectionClosed) {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientCodes[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08")
	}

	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// IsUniqueViolation checks if the error is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsNoRows checks if the error is a "no rows" error.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// classify maps a driver error onto the shared error taxonomy.
func classify(domain, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case IsNoRows(err):
		return shared.WrapError(domain, op, shared.ErrNotFound, "not found", err)
	case IsTransient(err):
		return shared.WrapError(domain, op, shared.ErrTransientStore, "transient database error", err)
	default:
		return shared.WrapError(domain, op, nil, "query failed", err)
	}
}

func notFound(domain, op, id string) error {
	return shared.NewDomainError(domain, op, shared.ErrNotFound, "no document with id "+id)
}
