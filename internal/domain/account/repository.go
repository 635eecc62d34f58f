package account

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE INTERFACES
// Implementations live in infrastructure/persistence.
// Every method returns shared.ErrNotFound for missing documents and
// shared.ErrTransientStore for failures worth retrying.
// ══════════════════════════════════════════════════════════════════════════════

// UserStore reads and updates user records.
type UserStore interface {
	// ListUsers returns one page ordered by (created_at, id).
	// An empty page means the listing is exhausted.
	ListUsers(ctx context.Context, offset, limit int) ([]UserRecord, error)

	// GetUser returns a single record.
	GetUser(ctx context.Context, id string) (*UserRecord, error)

	// UpdateProgress writes level, xp and claim fields.
	UpdateProgress(ctx context.Context, id string, update ProgressUpdate) error
}

// IdentityStore owns the authentication identity of a user.
type IdentityStore interface {
	DeleteUserIdentity(ctx context.Context, userID string) error
}

// ProfileStore owns the profile document of a user.
type ProfileStore interface {
	DeleteUserProfileDocument(ctx context.Context, profileID string) error
}

// LifecycleStore is everything the graduation sweep needs.
type LifecycleStore interface {
	UserStore
	IdentityStore
	ProfileStore
}
