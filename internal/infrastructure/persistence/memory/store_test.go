package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/market"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

func seedUsers(s *Store, n int, base time.Time) {
	for i := 0; i < n; i++ {
		s.PutUser(account.UserRecord{
			ID:        fmt.Sprintf("u%02d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Role:      shared.RoleOrdinary,
			Level:     1,
		})
	}
}

func TestListUsers_PagesInCreationOrder(t *testing.T) {
	s := NewStore()
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	seedUsers(s, 5, base)
	// Same timestamp as u00, ordered after it by id.
	s.PutUser(account.UserRecord{ID: "u00b", CreatedAt: base, Role: shared.RoleStaff, Level: 1})

	ctx := context.Background()
	page, err := s.ListUsers(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, []string{"u00", "u00b", "u01"}, []string{page[0].ID, page[1].ID, page[2].ID})

	page, err = s.ListUsers(ctx, 3, 3)
	require.NoError(t, err)
	assert.Len(t, page, 3)

	page, err = s.ListUsers(ctx, 6, 3)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = s.ListUsers(ctx, 0, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestDeletes_ReturnNotFoundWhenMissing(t *testing.T) {
	s := NewStore()
	seedUsers(s, 1, time.Now())
	ctx := context.Background()

	require.NoError(t, s.DeleteUserIdentity(ctx, "u00"))
	assert.ErrorIs(t, s.DeleteUserIdentity(ctx, "u00"), shared.ErrNotFound)

	require.NoError(t, s.DeleteUserProfileDocument(ctx, "u00"))
	assert.ErrorIs(t, s.DeleteUserProfileDocument(ctx, "u00"), shared.ErrNotFound)
	assert.False(t, s.HasUser("u00"))
}

func TestInjectError_CountsDown(t *testing.T) {
	s := NewStore()
	seedUsers(s, 1, time.Now())
	boom := errors.New("boom")
	s.InjectError(OpDeleteIdentity, "u00", boom, 1)

	ctx := context.Background()
	assert.ErrorIs(t, s.DeleteUserIdentity(ctx, "u00"), boom)
	assert.NoError(t, s.DeleteUserIdentity(ctx, "u00"))
	assert.Equal(t, 2, s.Calls(OpDeleteIdentity))
}

func TestUpdateTransaction_IsConditional(t *testing.T) {
	s := NewStore()
	s.PutTransaction(market.Transaction{
		ID: "t1", Amount: 1000, Status: market.StatusPaymentConfirmed, ProductID: "p1", SellerID: "s1",
	})
	ctx := context.Background()
	update := market.SettlementUpdate{Status: market.StatusCommissionDeducted, SettledAt: time.Now()}

	require.NoError(t, s.UpdateTransaction(ctx, "t1", market.StatusPaymentConfirmed, update))
	assert.ErrorIs(t, s.UpdateTransaction(ctx, "t1", market.StatusPaymentConfirmed, update), shared.ErrConflict)
	assert.ErrorIs(t, s.UpdateTransaction(ctx, "nope", market.StatusPaymentConfirmed, update), shared.ErrNotFound)
}
