// Package session carries the authenticated caller through a request.
// A Session is created per request by the HTTP layer and travels in the
// context; there is no process-wide current user.
package session

import (
	"context"
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// Session identifies the caller of one request.
type Session struct {
	UserID    string
	Role      shared.Role
	IssuedAt  time.Time
	RequestID string
}

// CanActFor reports whether the session may read or modify userID's data.
func (s Session) CanActFor(userID string) bool {
	return s.UserID == userID || s.Role.IsPrivileged()
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying s.
func WithContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}

// Require returns the session in ctx or ErrUnauthorized.
func Require(ctx context.Context) (Session, error) {
	s, ok := FromContext(ctx)
	if !ok || s.UserID == "" {
		return Session{}, shared.NewDomainError("session", "Require", shared.ErrUnauthorized, "no authenticated session")
	}
	return s, nil
}
