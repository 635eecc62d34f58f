package progression

import (
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADUATION
// ══════════════════════════════════════════════════════════════════════════════

// Year is the length of a calendar year averaged over leap years.
const Year = time.Duration(365.25 * 24 * float64(time.Hour))

const (
	// DefaultGraduationPeriodYears is the tenure after which an account graduates.
	DefaultGraduationPeriodYears = 4.0

	// DefaultProtocolThresholdYears starts the pre-deletion warning window.
	DefaultProtocolThresholdYears = 3.5

	// graduationMonth and graduationDay fix the display-only estimate to July 1.
	graduationMonth = time.July
	graduationDay   = 1

	// finalYearOrdinal is the year of study that graduates in the current year.
	finalYearOrdinal = 5
)

// Countdown splits a remaining duration into whole units.
type Countdown struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
}

// NewCountdown builds a countdown from d; negative durations count down to zero.
func NewCountdown(d time.Duration) Countdown {
	if d <= 0 {
		return Countdown{}
	}
	total := int64(d / time.Second)
	return Countdown{
		Days:    total / 86400,
		Hours:   (total % 86400) / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
	}
}

// GraduationStatus is derived per record and never persisted.
type GraduationStatus struct {
	Elapsed            time.Duration `json:"elapsed"`
	Remaining          time.Duration `json:"remaining"`
	ProgressPercentage float64       `json:"progress_percentage"`
	IsProtocolActive   bool          `json:"is_protocol_active"`
	IsGraduated        bool          `json:"is_graduated"`
	GraduatesAt        time.Time     `json:"graduates_at"`
	Countdown          Countdown     `json:"countdown"`
}

// GraduationEstimate is a display-only graduation date derived from the
// self-declared year of study. It never drives deletion.
type GraduationEstimate struct {
	Year      int       `json:"year"`
	Date      time.Time `json:"date"`
	Countdown Countdown `json:"countdown"`
}

// GraduationClock computes tenure status from an account creation time.
type GraduationClock struct {
	period    time.Duration
	threshold time.Duration
}

// NewGraduationClock builds a clock. The protocol threshold must be positive
// and must not exceed the graduation period.
func NewGraduationClock(periodYears, protocolThresholdYears float64) (*GraduationClock, error) {
	if periodYears <= 0 {
		return nil, shared.InvalidArgument("progression", "NewGraduationClock", "graduation period must be > 0, got %v", periodYears)
	}
	if protocolThresholdYears <= 0 || protocolThresholdYears > periodYears {
		return nil, shared.InvalidArgument("progression", "NewGraduationClock",
			"protocol threshold must be within (0, %v], got %v", periodYears, protocolThresholdYears)
	}
	return &GraduationClock{
		period:    yearsToDuration(periodYears),
		threshold: yearsToDuration(protocolThresholdYears),
	}, nil
}

// DefaultGraduationClock returns the 4 year / 3.5 year clock.
func DefaultGraduationClock() *GraduationClock {
	clock, err := NewGraduationClock(DefaultGraduationPeriodYears, DefaultProtocolThresholdYears)
	if err != nil {
		panic(err)
	}
	return clock
}

// Period returns the configured graduation period.
func (c *GraduationClock) Period() time.Duration {
	return c.period
}

// ComputeStatus derives the graduation status of an account created at
// createdAt, as observed at now. An account graduates exactly when the
// remaining time reaches zero.
func (c *GraduationClock) ComputeStatus(createdAt, now time.Time) (GraduationStatus, error) {
	if createdAt.IsZero() {
		return GraduationStatus{}, shared.InvalidArgument("progression", "ComputeStatus", "createdAt is required")
	}

	graduatesAt := createdAt.Add(c.period)
	elapsed := now.Sub(createdAt)
	remaining := graduatesAt.Sub(now)
	graduated := remaining <= 0

	progress := float64(elapsed) / float64(c.period) * 100
	switch {
	case graduated || progress > 100:
		progress = 100
	case progress < 0:
		progress = 0
	}

	return GraduationStatus{
		Elapsed:            elapsed,
		Remaining:          remaining,
		ProgressPercentage: progress,
		IsProtocolActive:   elapsed >= c.threshold && !graduated,
		IsGraduated:        graduated,
		GraduatesAt:        graduatesAt,
		Countdown:          NewCountdown(remaining),
	}, nil
}

// EstimateGraduation returns the July 1 graduation date implied by the year
// of study declared at account creation.
func EstimateGraduation(createdAt time.Time, year shared.YearOfStudy, now time.Time) (GraduationEstimate, error) {
	if createdAt.IsZero() {
		return GraduationEstimate{}, shared.InvalidArgument("progression", "EstimateGraduation", "createdAt is required")
	}
	ordinal := year.Ordinal()
	if ordinal == 0 {
		return GraduationEstimate{}, shared.InvalidArgument("progression", "EstimateGraduation", "unknown year of study %q", year)
	}

	gradYear := createdAt.Year() + (finalYearOrdinal - ordinal)
	date := time.Date(gradYear, graduationMonth, graduationDay, 0, 0, 0, 0, createdAt.Location())

	return GraduationEstimate{
		Year:      gradYear,
		Date:      date,
		Countdown: NewCountdown(date.Sub(now)),
	}, nil
}

func yearsToDuration(years float64) time.Duration {
	return time.Duration(years * float64(Year))
}
