package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
//	"0 3 * * *"    every day at 03:00
//	"*/15 * * * *" every 15 minutes
//	"0 4 * * 1-5"  weekdays at 04:00
type CronSchedule struct {
	raw      string
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64
}

// Well-known descriptors accepted by ParseSchedule.
var descriptors = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
}

// ParseSchedule accepts a cron expression, a descriptor such as "@daily",
// or "@every <duration>".
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)

	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid @every duration: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("@every duration must be positive, got %s", d)
		}
		return NewIntervalSchedule(d), nil
	}

	if expr, ok := descriptors[spec]; ok {
		cs, err := ParseCron(expr)
		if err != nil {
			return nil, err
		}
		cs.raw = spec
		return cs, nil
	}

	return ParseCron(spec)
}

// ParseCron parses a 5-field cron expression.
// Each field supports *, */n, n, n-m, n-m/s and comma lists of those.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	bounds := [5]struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day", 1, 31},
		{"month", 1, 12},
		{"weekday", 0, 6},
	}

	var sets [5]uint64
	for i, f := range fields {
		set, err := parseField(f, bounds[i].min, bounds[i].max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", bounds[i].name, err)
		}
		sets[i] = set
	}

	return &CronSchedule{
		raw:      expr,
		minutes:  sets[0],
		hours:    sets[1],
		days:     sets[2],
		months:   sets[3],
		weekdays: sets[4],
	}, nil
}

// MustParseCron parses expr or panics. Use only for constants.
func MustParseCron(expr string) *CronSchedule {
	cs, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return cs
}

func parseField(field string, min, max int) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		bits, err := parseRange(part, min, max)
		if err != nil {
			return 0, err
		}
		set |= bits
	}
	return set, nil
}

func parseRange(part string, min, max int) (uint64, error) {
	rangePart, stepPart, hasStep := strings.Cut(part, "/")

	step := 1
	if hasStep {
		s, err := strconv.Atoi(stepPart)
		if err != nil || s <= 0 {
			return 0, fmt.Errorf("invalid step %q", stepPart)
		}
		step = s
	}

	var start, end int
	switch {
	case rangePart == "*":
		start, end = min, max
	case strings.Contains(rangePart, "-"):
		lo, hi, _ := strings.Cut(rangePart, "-")
		var err error
		if start, err = strconv.Atoi(lo); err != nil {
			return 0, fmt.Errorf("invalid range start %q", lo)
		}
		if end, err = strconv.Atoi(hi); err != nil {
			return 0, fmt.Errorf("invalid range end %q", hi)
		}
	default:
		v, err := strconv.Atoi(rangePart)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", rangePart)
		}
		start, end = v, v
		if hasStep {
			end = max
		}
	}

	if start < min || end > max || start > end {
		return 0, fmt.Errorf("range %d-%d outside [%d-%d]", start, end, min, max)
	}

	var set uint64
	for i := start; i <= end; i += step {
		set |= 1 << uint(i)
	}
	return set, nil
}

// String returns the expression as given.
func (c *CronSchedule) String() string {
	return c.raw
}

// Next returns the first matching minute strictly after t, or the zero time
// if nothing matches within a year.
func (c *CronSchedule) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)

	const limit = 366 * 24 * 60
	for i := 0; i < limit; i++ {
		if c.matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

func (c *CronSchedule) matches(t time.Time) bool {
	return has(c.minutes, t.Minute()) &&
		has(c.hours, t.Hour()) &&
		has(c.days, t.Day()) &&
		has(c.months, int(t.Month())) &&
		has(c.weekdays, int(t.Weekday()))
}

func has(set uint64, v int) bool {
	return set&(1<<uint(v)) != 0
}
