package resilient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/memory"
	"github.com/campusmart/campusmart-core/pkg/retry"
)

func fastRetrier() *retry.Retrier {
	return NewRetrier(nil, retry.WithInitialDelay(time.Millisecond), retry.WithMaxDelay(time.Millisecond))
}

func transient() error {
	return shared.NewDomainError("account", "test", shared.ErrTransientStore, "connection reset")
}

func TestAccountStore_RetriesTransientErrors(t *testing.T) {
	mem := memory.NewStore()
	mem.PutUser(account.UserRecord{ID: "u1", CreatedAt: time.Now(), Role: shared.RoleOrdinary, Level: 1})
	mem.InjectError(memory.OpDeleteIdentity, "u1", transient(), 2)

	store := NewAccountStore(mem, fastRetrier())

	require.NoError(t, store.DeleteUserIdentity(context.Background(), "u1"))
	assert.Equal(t, 3, mem.Calls(memory.OpDeleteIdentity))
}

func TestAccountStore_GivesUpAfterMaxAttempts(t *testing.T) {
	mem := memory.NewStore()
	mem.InjectError(memory.OpListUsers, "", transient(), -1)

	store := NewAccountStore(mem, fastRetrier())

	_, err := store.ListUsers(context.Background(), 0, 10)
	assert.ErrorIs(t, err, shared.ErrTransientStore)
	assert.Equal(t, 3, mem.Calls(memory.OpListUsers))
}

func TestAccountStore_DoesNotRetryNotFound(t *testing.T) {
	mem := memory.NewStore()
	store := NewAccountStore(mem, fastRetrier())

	err := store.DeleteUserProfileDocument(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, 1, mem.Calls(memory.OpDeleteProfile))
}
