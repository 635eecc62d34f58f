package query

import (
	"context"
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

var standingNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newStandingHandler(store *memory.Store) *GetStandingHandler {
	h := NewGetStandingHandler(store, nil, nil, []shared.Role{shared.RoleStaff, shared.RoleDeveloper})
	h.now = func() time.Time { return standingNow }
	return h
}

func ctxFor(userID string, role shared.Role) context.Context {
	return session.WithContext(context.Background(), session.Session{UserID: userID, Role: role})
}

func TestGetStanding_SessionUser(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(account.UserRecord{
		ID:          "u1",
		CreatedAt:   time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		Role:        shared.RoleOrdinary,
		Level:       7,
		CurrentXP:   100,
		YearOfStudy: "II",
		LoginStreak: 3,
	})

	s, err := newStandingHandler(store).Handle(ctxFor("u1", shared.RoleOrdinary), GetStandingQuery{})
	require.NoError(t, err)

	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, 400, s.NextThreshold)
	assert.Equal(t, 300, s.XPToNextLevel)
	assert.InDelta(t, 25.0, s.ProgressPercent, 1e-9)
	assert.InDelta(t, 0.1036, s.CommissionRate, 1e-9)
	assert.Equal(t, 3, s.LoginStreak)
	assert.False(t, s.GraduationExempt)
	assert.False(t, s.Graduation.IsGraduated)
	assert.False(t, s.Graduation.IsProtocolActive)

	require.NotNil(t, s.Estimate)
	assert.Equal(t, 2027, s.Estimate.Year)
}

func TestGetStanding_DisplayCountdown(t *testing.T) {
	left := 3*24*time.Hour + 4*time.Hour + 5*time.Minute
	store := memory.NewStore()
	store.PutUser(account.UserRecord{
		ID:        "u1",
		CreatedAt: standingNow.Add(-(4*progression.Year - left)),
		Role:      shared.RoleOrdinary,
		Level:     1,
	})

	s, err := newStandingHandler(store).Handle(ctxFor("u1", shared.RoleOrdinary), GetStandingQuery{})
	require.NoError(t, err)

	assert.Equal(t, left, s.Graduation.Remaining)
	assert.Equal(t, "3d 04h 05m", s.GraduationCountdown)
	assert.Equal(t, "2026-01-18", s.GraduatesOn)
	assert.Equal(t, 1458, s.DaysOnCampus)
}

func TestGetStanding_ProtocolActiveNearGraduation(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(account.UserRecord{
		ID:        "senior",
		CreatedAt: standingNow.AddDate(-3, -8, 0),
		Role:      shared.RoleStaff,
		Level:     1,
	})

	s, err := newStandingHandler(store).Handle(ctxFor("senior", shared.RoleStaff), GetStandingQuery{})
	require.NoError(t, err)

	assert.True(t, s.Graduation.IsProtocolActive)
	assert.False(t, s.Graduation.IsGraduated)
	assert.True(t, s.GraduationExempt)
	assert.Nil(t, s.Estimate)
}

func TestGetStanding_Authorization(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(account.UserRecord{ID: "u1", CreatedAt: standingNow.AddDate(-1, 0, 0), Role: shared.RoleOrdinary, Level: 1})
	h := newStandingHandler(store)

	_, err := h.Handle(context.Background(), GetStandingQuery{UserID: "u1"})
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = h.Handle(ctxFor("u2", shared.RoleOrdinary), GetStandingQuery{UserID: "u1"})
	assert.ErrorIs(t, err, shared.ErrForbidden)

	s, err := h.Handle(ctxFor("dev", shared.RoleDeveloper), GetStandingQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)

	_, err = h.Handle(ctxFor("dev", shared.RoleDeveloper), GetStandingQuery{UserID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}

func TestDescribeLevel(t *testing.T) {
	h := newStandingHandler(memory.NewStore())

	info, err := h.DescribeLevel(20)
	require.NoError(t, err)
	assert.Equal(t, 1050, info.MaxXP)
	assert.InDelta(t, 0.1000, info.CommissionRate, 1e-9)

	info, err = h.DescribeLevel(150)
	require.NoError(t, err)
	assert.InDelta(t, 0.0534, info.CommissionRate, 1e-9)

	_, err = h.DescribeLevel(0)
	assert.True(t, shared.IsInvalidArgument(err))
}
