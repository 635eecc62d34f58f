package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/session"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/memory"
)

func sessionCtx(userID string, role shared.Role) context.Context {
	return session.WithContext(context.Background(), session.Session{UserID: userID, Role: role, RequestID: "req-1"})
}

func newGrantHandler(store *memory.Store, now time.Time) *GrantXPHandler {
	h := NewGrantXPHandler(store, progression.DefaultRewardTable(), nil)
	h.now = func() time.Time { return now }
	return h
}

func seedUser(store *memory.Store, id string, level, xp int) {
	store.PutUser(account.UserRecord{
		ID:        id,
		CreatedAt: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		Role:      shared.RoleOrdinary,
		Level:     level,
		CurrentXP: xp,
	})
}

func TestGrantXP_RequiresSession(t *testing.T) {
	h := newGrantHandler(memory.NewStore(), time.Now())
	_, err := h.Handle(context.Background(), GrantXPCommand{Kind: progression.RewardDailyLogin})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestGrantXP_DailyLoginOncePerDayWithStreak(t *testing.T) {
	store := memory.NewStore()
	seedUser(store, "u1", 1, 0)
	ctx := sessionCtx("u1", shared.RoleOrdinary)
	day1 := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

	h := newGrantHandler(store, day1)
	result, err := h.Handle(ctx, GrantXPCommand{Kind: progression.RewardDailyLogin})
	require.NoError(t, err)
	assert.Equal(t, 10, result.XPGained)
	assert.Equal(t, 10, result.CurrentXP)
	assert.Equal(t, 1, result.LoginStreak)

	h.now = func() time.Time { return day1.Add(10 * time.Hour) }
	_, err = h.Handle(ctx, GrantXPCommand{Kind: progression.RewardDailyLogin})
	assert.ErrorIs(t, err, shared.ErrAlreadyClaimed)

	u, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, u.CurrentXP, "rejected claim writes nothing")

	h.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	result, err = h.Handle(ctx, GrantXPCommand{Kind: progression.RewardDailyLogin})
	require.NoError(t, err)
	assert.Equal(t, 2, result.LoginStreak)
	assert.Equal(t, 20, result.CurrentXP)
}

func TestGrantXP_LevelsUp(t *testing.T) {
	store := memory.NewStore()
	seedUser(store, "u1", 1, 95)
	h := newGrantHandler(store, time.Now())

	result, err := h.Handle(sessionCtx("u1", shared.RoleOrdinary), GrantXPCommand{Kind: progression.RewardListingPosted})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Level)
	assert.Equal(t, 10, result.CurrentXP)
	assert.Equal(t, 150, result.NextThreshold)
	assert.Equal(t, 1, result.LevelsGained)

	u, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, u.Level)
	assert.Equal(t, 10, u.CurrentXP)
}

func TestGrantXP_Authorization(t *testing.T) {
	store := memory.NewStore()
	seedUser(store, "u1", 1, 0)
	h := newGrantHandler(store, time.Now())
	cmd := GrantXPCommand{UserID: "u1", Kind: progression.RewardListingPosted}

	_, err := h.Handle(sessionCtx("u2", shared.RoleOrdinary), cmd)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = h.Handle(sessionCtx("admin", shared.RoleStaff), cmd)
	assert.NoError(t, err)

	_, err = h.Handle(sessionCtx("u1", shared.RoleOrdinary), GrantXPCommand{Kind: "sleeping_in"})
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestGrantXP_ConcurrentGrantsAreNotLost(t *testing.T) {
	store := memory.NewStore()
	seedUser(store, "u1", 1, 0)
	h := newGrantHandler(store, time.Now())
	ctx := sessionCtx("u1", shared.RoleOrdinary)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Handle(ctx, GrantXPCommand{Kind: progression.RewardListingPosted})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 300 XP from level 1: 100 to reach L2, 150 to reach L3, 50 left.
	u, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, u.Level)
	assert.Equal(t, 50, u.CurrentXP)
}
