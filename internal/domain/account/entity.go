// Package account holds the user record as the progression engine sees it and
// the store contracts the lifecycle jobs depend on.
package account

import (
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER RECORD
// ══════════════════════════════════════════════════════════════════════════════

// UserRecord is the user document owned by the account store.
// Invariant after every leveling update: 0 <= CurrentXP < MaxXPForLevel(Level).
type UserRecord struct {
	ID        string      `json:"id" validate:"required"`
	ProfileID string      `json:"profile_id,omitempty"`
	CreatedAt time.Time   `json:"created_at" validate:"required"`
	Role      shared.Role `json:"role" validate:"required,oneof=ordinary staff developer"`

	Level     int `json:"level" validate:"gte=1"`
	CurrentXP int `json:"current_xp" validate:"gte=0"`

	YearOfStudy shared.YearOfStudy `json:"year_of_study,omitempty" validate:"omitempty,oneof=I II III IV V"`

	LastLoginStreakClaim *time.Time `json:"last_login_streak_claim,omitempty"`
	DailyQuestCompleted  *time.Time `json:"daily_quest_completed,omitempty"`
	LoginStreak          int        `json:"login_streak" validate:"gte=0"`
}

// ProfileDocumentID returns the id of the user's profile document.
// Profiles created before ProfileID existed share the user id.
func (u *UserRecord) ProfileDocumentID() string {
	if u.ProfileID != "" {
		return u.ProfileID
	}
	return u.ID
}

// IsProtected reports whether role is exempt from graduation deletion.
func (u *UserRecord) IsProtected(protected []shared.Role) bool {
	for _, r := range protected {
		if u.Role == r {
			return true
		}
	}
	return false
}

// Claims returns the daily-reward state of the record.
func (u *UserRecord) Claims() progression.ClaimState {
	return progression.ClaimState{
		LastLoginClaim:      u.LastLoginStreakClaim,
		DailyQuestCompleted: u.DailyQuestCompleted,
		LoginStreak:         u.LoginStreak,
	}
}

// ProgressUpdate is the set of fields a leveling update writes back.
type ProgressUpdate struct {
	Level                int        `json:"level" validate:"gte=1"`
	CurrentXP            int        `json:"current_xp" validate:"gte=0"`
	LastLoginStreakClaim *time.Time `json:"last_login_streak_claim,omitempty"`
	DailyQuestCompleted  *time.Time `json:"daily_quest_completed,omitempty"`
	LoginStreak          int        `json:"login_streak" validate:"gte=0"`
}

// NewProgressUpdate builds an update from a leveling result and claim state.
func NewProgressUpdate(state progression.LevelState, claims progression.ClaimState) ProgressUpdate {
	return ProgressUpdate{
		Level:                state.Level,
		CurrentXP:            state.CurrentXP,
		LastLoginStreakClaim: claims.LastLoginClaim,
		DailyQuestCompleted:  claims.DailyQuestCompleted,
		LoginStreak:          claims.LoginStreak,
	}
}

// Apply copies the update onto the record.
func (p ProgressUpdate) Apply(u *UserRecord) {
	u.Level = p.Level
	u.CurrentXP = p.CurrentXP
	u.LastLoginStreakClaim = p.LastLoginStreakClaim
	u.DailyQuestCompleted = p.DailyQuestCompleted
	u.LoginStreak = p.LoginStreak
}
