// Package query contains read operations (CQRS - Queries).
// Queries never change state.
package query

import (
	"context"
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/session"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STANDING QUERY
// Level, XP, commission and graduation countdown of one user, as the UI
// shows them on the profile screen.
// ══════════════════════════════════════════════════════════════════════════════

// GetStandingQuery selects the user. An empty UserID means the session user.
type GetStandingQuery struct {
	UserID string
}

// Standing is the computed view of a user.
type Standing struct {
	UserID          string      `json:"user_id"`
	Role            shared.Role `json:"role"`
	Level           int         `json:"level"`
	CurrentXP       int         `json:"current_xp"`
	NextThreshold   int         `json:"next_threshold"`
	XPToNextLevel   int         `json:"xp_to_next_level"`
	ProgressPercent float64     `json:"progress_percent"`
	LoginStreak     int         `json:"login_streak"`
	CommissionRate  float64     `json:"commission_rate"`

	// GraduationExempt is set for roles the sweep never deletes.
	GraduationExempt bool                            `json:"graduation_exempt"`
	Graduation       progression.GraduationStatus    `json:"graduation"`
	Estimate         *progression.GraduationEstimate `json:"estimate,omitempty"`

	// Display strings in the campus timezone.
	GraduationCountdown string `json:"graduation_countdown"`
	GraduatesOn         string `json:"graduates_on"`
	DaysOnCampus        int    `json:"days_on_campus"`
}

// LevelInfo describes a level independent of any user.
type LevelInfo struct {
	Level          int     `json:"level"`
	MaxXP          int     `json:"max_xp"`
	CommissionRate float64 `json:"commission_rate"`
}

// UserReader loads user records.
type UserReader interface {
	GetUser(ctx context.Context, id string) (*account.UserRecord, error)
}

// GetStandingHandler answers standing and level queries.
type GetStandingHandler struct {
	users          UserReader
	calculator     *progression.CommissionCalculator
	clock          *progression.GraduationClock
	protectedRoles []shared.Role
	now            func() time.Time
}

// NewGetStandingHandler creates a new GetStandingHandler.
// Nil calculator and clock use the defaults.
func NewGetStandingHandler(
	users UserReader,
	calculator *progression.CommissionCalculator,
	clock *progression.GraduationClock,
	protectedRoles []shared.Role,
) *GetStandingHandler {
	if calculator == nil {
		calculator = progression.DefaultCommissionCalculator()
	}
	if clock == nil {
		clock = progression.DefaultGraduationClock()
	}
	return &GetStandingHandler{
		users:          users,
		calculator:     calculator,
		clock:          clock,
		protectedRoles: protectedRoles,
		now:            time.Now,
	}
}

// Handle returns the standing of the selected user. Reading another user's
// standing requires a staff or developer session.
func (h *GetStandingHandler) Handle(ctx context.Context, q GetStandingQuery) (*Standing, error) {
	sess, err := session.Require(ctx)
	if err != nil {
		return nil, err
	}
	if q.UserID == "" {
		q.UserID = sess.UserID
	}
	if !sess.CanActFor(q.UserID) {
		return nil, shared.NewDomainError("progression", "GetStanding", shared.ErrForbidden,
			"session may not read another user's standing")
	}

	user, err := h.users.GetUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	now := h.now()
	graduation, err := h.clock.ComputeStatus(user.CreatedAt, now)
	if err != nil {
		return nil, err
	}

	standing := &Standing{
		UserID:           user.ID,
		Role:             user.Role,
		Level:            user.Level,
		CurrentXP:        user.CurrentXP,
		NextThreshold:    progression.MaxXPForLevel(user.Level),
		XPToNextLevel:    progression.XPToNextLevel(user.Level, user.CurrentXP),
		ProgressPercent:  progression.ProgressPercent(user.Level, user.CurrentXP),
		LoginStreak:      user.LoginStreak,
		CommissionRate:   h.calculator.RateForLevel(user.Level),
		GraduationExempt: user.IsProtected(h.protectedRoles),
		Graduation:       graduation,

		GraduationCountdown: timeutil.FormatCountdown(graduation.Remaining),
		GraduatesOn:         timeutil.FormatDateStr(graduation.GraduatesAt),
		DaysOnCampus:        timeutil.DaysBetween(user.CreatedAt, now),
	}

	if user.YearOfStudy != "" {
		// The estimate is informational; a bad year of study just omits it.
		if est, err := progression.EstimateGraduation(user.CreatedAt, user.YearOfStudy, now); err == nil {
			standing.Estimate = &est
		}
	}

	return standing, nil
}

// DescribeLevel returns the XP threshold and commission rate of level.
func (h *GetStandingHandler) DescribeLevel(level int) (LevelInfo, error) {
	if level < progression.MinLevel {
		return LevelInfo{}, shared.InvalidArgument("progression", "DescribeLevel", "level must be >= %d, got %d", progression.MinLevel, level)
	}
	return LevelInfo{
		Level:          level,
		MaxXP:          progression.MaxXPForLevel(level),
		CommissionRate: h.calculator.RateForLevel(level),
	}, nil
}
