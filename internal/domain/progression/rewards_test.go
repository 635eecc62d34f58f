package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

func TestClaim_DailyLoginOncePerDay(t *testing.T) {
	table := DefaultRewardTable()
	morning := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	first, err := table.Claim(RewardDailyLogin, ClaimState{}, morning)
	require.NoError(t, err)
	assert.Equal(t, 10, first.XP)
	assert.Equal(t, 1, first.Claims.LoginStreak)

	_, err = table.Claim(RewardDailyLogin, first.Claims, morning.Add(10*time.Hour))
	assert.ErrorIs(t, err, shared.ErrAlreadyClaimed)
}

func TestClaim_LoginStreak(t *testing.T) {
	table := DefaultRewardTable()
	day1 := time.Date(2026, 5, 4, 23, 0, 0, 0, time.UTC)

	r1, err := table.Claim(RewardDailyLogin, ClaimState{}, day1)
	require.NoError(t, err)

	r2, err := table.Claim(RewardDailyLogin, r1.Claims, day1.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Claims.LoginStreak)

	r3, err := table.Claim(RewardDailyLogin, r2.Claims, day1.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, r3.Claims.LoginStreak)
}

func TestClaim_DailyQuest(t *testing.T) {
	table := DefaultRewardTable()
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	r, err := table.Claim(RewardDailyQuest, ClaimState{}, now)
	require.NoError(t, err)
	assert.Equal(t, 25, r.XP)
	require.NotNil(t, r.Claims.DailyQuestCompleted)

	_, err = table.Claim(RewardDailyQuest, r.Claims, now.Add(time.Hour))
	assert.ErrorIs(t, err, shared.ErrAlreadyClaimed)

	_, err = table.Claim(RewardDailyQuest, r.Claims, now.Add(24*time.Hour))
	assert.NoError(t, err)
}

func TestClaim_ListingPostedHasNoDailyLimit(t *testing.T) {
	table := DefaultRewardTable()
	now := time.Now()

	for i := 0; i < 3; i++ {
		r, err := table.Claim(RewardListingPosted, ClaimState{}, now)
		require.NoError(t, err)
		assert.Equal(t, 15, r.XP)
	}
}

func TestClaim_UnknownKind(t *testing.T) {
	_, err := DefaultRewardTable().Claim("referral", ClaimState{}, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}
