package progression

import (
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP REWARDS
// ══════════════════════════════════════════════════════════════════════════════

// RewardKind identifies an XP-granting event.
type RewardKind string

const (
	RewardDailyLogin    RewardKind = "daily_login"
	RewardDailyQuest    RewardKind = "daily_quest"
	RewardListingPosted RewardKind = "listing_posted"
)

// IsValid checks if the reward kind is known.
func (k RewardKind) IsValid() bool {
	switch k {
	case RewardDailyLogin, RewardDailyQuest, RewardListingPosted:
		return true
	}
	return false
}

// RewardTable holds the XP amount granted per event.
type RewardTable struct {
	DailyLogin    int
	DailyQuest    int
	ListingPosted int
}

// DefaultRewardTable returns the production XP amounts.
func DefaultRewardTable() RewardTable {
	return RewardTable{
		DailyLogin:    10,
		DailyQuest:    25,
		ListingPosted: 15,
	}
}

// Amount returns the XP for kind.
func (t RewardTable) Amount(kind RewardKind) (int, error) {
	switch kind {
	case RewardDailyLogin:
		return t.DailyLogin, nil
	case RewardDailyQuest:
		return t.DailyQuest, nil
	case RewardListingPosted:
		return t.ListingPosted, nil
	}
	return 0, shared.InvalidArgument("progression", "RewardAmount", "unknown reward kind %q", kind)
}

// ClaimState is the part of a user record that the daily guards look at.
type ClaimState struct {
	LastLoginClaim      *time.Time
	DailyQuestCompleted *time.Time
	LoginStreak         int
}

// ClaimResult is what a successful claim changes.
type ClaimResult struct {
	Kind   RewardKind
	XP     int
	Claims ClaimState
}

// Claim checks the once-per-day guard for kind and returns the updated claim
// state. Days are campus calendar days. A second claim on the same day fails
// with ErrAlreadyClaimed.
func (t RewardTable) Claim(kind RewardKind, state ClaimState, now time.Time) (ClaimResult, error) {
	xp, err := t.Amount(kind)
	if err != nil {
		return ClaimResult{}, err
	}

	next := state
	switch kind {
	case RewardDailyLogin:
		if state.LastLoginClaim != nil && timeutil.IsSameDay(*state.LastLoginClaim, now) {
			return ClaimResult{}, shared.NewDomainError("progression", "Claim", shared.ErrAlreadyClaimed, "daily login already claimed today")
		}
		if state.LastLoginClaim != nil && timeutil.IsConsecutiveDay(*state.LastLoginClaim, now) {
			next.LoginStreak = state.LoginStreak + 1
		} else {
			next.LoginStreak = 1
		}
		claimed := now
		next.LastLoginClaim = &claimed

	case RewardDailyQuest:
		if state.DailyQuestCompleted != nil && timeutil.IsSameDay(*state.DailyQuestCompleted, now) {
			return ClaimResult{}, shared.NewDomainError("progression", "Claim", shared.ErrAlreadyClaimed, "daily quest already completed today")
		}
		completed := now
		next.DailyQuestCompleted = &completed
	}

	return ClaimResult{Kind: kind, XP: xp, Claims: next}, nil
}
