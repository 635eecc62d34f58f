// Package timeutil provides campus-timezone helpers.
// Daily rewards reset at midnight in the campus timezone, not in UTC, so
// every calendar-day comparison goes through this package.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"sync/atomic"
	"time"
)

var campus atomic.Pointer[time.Location]

func init() {
	campus.Store(time.UTC)
}

// SetLocation sets the campus timezone. A nil location resets it to UTC.
func SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	campus.Store(loc)
}

// Location returns the campus timezone.
func Location() *time.Location {
	return campus.Load()
}

// Now returns the current time in the campus timezone.
func Now() time.Time {
	return time.Now().In(Location())
}

// In converts a time to the campus timezone.
func In(t time.Time) time.Time {
	return t.In(Location())
}

// StartOfDay returns 00:00:00 of t's campus calendar day.
func StartOfDay(t time.Time) time.Time {
	c := In(t)
	return time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, c.Location())
}

// IsSameDay checks if two times fall on the same campus calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	c1, c2 := In(t1), In(t2)
	return c1.Year() == c2.Year() && c1.YearDay() == c2.YearDay()
}

// IsConsecutiveDay checks if t2 falls on the campus day right after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return IsSameDay(StartOfDay(t1).AddDate(0, 0, 1), t2)
}

// DaysBetween calculates the number of calendar days between two times.
func DaysBetween(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	days := int(a2.Sub(a1).Round(time.Hour).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Common date formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
)

// FormatDateStr formats a time as a campus-local date string.
func FormatDateStr(t time.Time) string {
	return In(t).Format(FormatDate)
}

// FormatCountdown renders a remaining duration as "12d 03h 15m".
func FormatCountdown(d time.Duration) string {
	if d <= 0 {
		return "0d 00h 00m"
	}
	days := int64(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int64(d / time.Minute)
	return fmt.Sprintf("%dd %02dh %02dm", days, hours, minutes)
}
