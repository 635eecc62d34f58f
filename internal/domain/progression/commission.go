package progression

import (
	"math"
	"strconv"
	"strings"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMISSION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultStartRate is charged at and below the first breakpoint.
	DefaultStartRate = 0.1132

	// DefaultMinRate is charged at and above the last breakpoint.
	DefaultMinRate = 0.0534
)

// Breakpoint pins the commission rate at a given level.
type Breakpoint struct {
	Level int
	Rate  float64
}

// DefaultBreakpoints returns the production rate table.
func DefaultBreakpoints() []Breakpoint {
	return []Breakpoint{
		{Level: 1, Rate: 0.1132},
		{Level: 7, Rate: 0.1036},
		{Level: 20, Rate: 0.1000},
		{Level: 50, Rate: 0.0800},
		{Level: 100, Rate: 0.0534},
	}
}

// CommissionCalculator maps a seller level to the platform fee rate by
// piecewise-linear interpolation between breakpoints.
type CommissionCalculator struct {
	startRate   float64
	minRate     float64
	breakpoints []Breakpoint
}

// NewCommissionCalculator validates the table and builds a calculator.
// Levels must be strictly increasing and rates must never increase, so the
// resulting rate is non-increasing in level.
func NewCommissionCalculator(startRate, minRate float64, breakpoints []Breakpoint) (*CommissionCalculator, error) {
	const op = "NewCommissionCalculator"

	if len(breakpoints) < 2 {
		return nil, shared.InvalidArgument("progression", op, "need at least 2 breakpoints, got %d", len(breakpoints))
	}
	if startRate < 0 || startRate > 1 || minRate < 0 || minRate > 1 {
		return nil, shared.InvalidArgument("progression", op, "rates must be within [0,1]")
	}
	if minRate > startRate {
		return nil, shared.InvalidArgument("progression", op, "min rate %.4f exceeds start rate %.4f", minRate, startRate)
	}

	for i := 1; i < len(breakpoints); i++ {
		prev, cur := breakpoints[i-1], breakpoints[i]
		if cur.Level <= prev.Level {
			return nil, shared.InvalidArgument("progression", op, "breakpoint levels must increase: %d after %d", cur.Level, prev.Level)
		}
		if cur.Rate > prev.Rate {
			return nil, shared.InvalidArgument("progression", op, "breakpoint rates must not increase: %.4f after %.4f", cur.Rate, prev.Rate)
		}
	}

	first, last := breakpoints[0], breakpoints[len(breakpoints)-1]
	if !rateEqual(first.Rate, startRate) {
		return nil, shared.InvalidArgument("progression", op, "first breakpoint rate %.4f must equal start rate %.4f", first.Rate, startRate)
	}
	if !rateEqual(last.Rate, minRate) {
		return nil, shared.InvalidArgument("progression", op, "last breakpoint rate %.4f must equal min rate %.4f", last.Rate, minRate)
	}

	table := make([]Breakpoint, len(breakpoints))
	copy(table, breakpoints)

	return &CommissionCalculator{
		startRate:   startRate,
		minRate:     minRate,
		breakpoints: table,
	}, nil
}

// DefaultCommissionCalculator returns the calculator for the production table.
func DefaultCommissionCalculator() *CommissionCalculator {
	calc, err := NewCommissionCalculator(DefaultStartRate, DefaultMinRate, DefaultBreakpoints())
	if err != nil {
		panic(err)
	}
	return calc
}

// RateForLevel returns the commission rate for level.
func (c *CommissionCalculator) RateForLevel(level int) float64 {
	first := c.breakpoints[0]
	last := c.breakpoints[len(c.breakpoints)-1]

	if level <= first.Level {
		return c.startRate
	}
	if level >= last.Level {
		return c.minRate
	}

	for i := 0; i < len(c.breakpoints)-1; i++ {
		p1, p2 := c.breakpoints[i], c.breakpoints[i+1]
		if level >= p1.Level && level < p2.Level {
			slope := (p1.Rate - p2.Rate) / float64(p2.Level-p1.Level)
			return p1.Rate - float64(level-p1.Level)*slope
		}
	}

	// Unreachable with a validated table.
	return c.minRate
}

// Breakpoints returns a copy of the rate table.
func (c *CommissionCalculator) Breakpoints() []Breakpoint {
	out := make([]Breakpoint, len(c.breakpoints))
	copy(out, c.breakpoints)
	return out
}

// CommissionSplit is the outcome of applying a rate to an amount.
type CommissionSplit struct {
	Rate       float64
	Commission shared.Money
	Net        shared.Money
}

// Split computes the commission for amount (minor units) at the seller's level.
// The commission is rounded half away from zero to the nearest minor unit.
func (c *CommissionCalculator) Split(amount shared.Money, sellerLevel int) (CommissionSplit, error) {
	if amount < 0 {
		return CommissionSplit{}, shared.InvalidArgument("progression", "Split", "amount must be >= 0, got %d", amount)
	}
	rate := c.RateForLevel(sellerLevel)
	commission := shared.Money(math.Round(float64(amount) * rate))
	return CommissionSplit{
		Rate:       rate,
		Commission: commission,
		Net:        amount - commission,
	}, nil
}

// ParseBreakpoints parses "level:rate" pairs separated by commas,
// e.g. "1:0.1132,7:0.1036,100:0.0534".
func ParseBreakpoints(value string) ([]Breakpoint, error) {
	var out []Breakpoint
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		levelStr, rateStr, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, shared.InvalidArgument("progression", "ParseBreakpoints", "expected level:rate, got %q", pair)
		}
		level, err := strconv.Atoi(strings.TrimSpace(levelStr))
		if err != nil {
			return nil, shared.InvalidArgument("progression", "ParseBreakpoints", "bad level in %q", pair)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(rateStr), 64)
		if err != nil {
			return nil, shared.InvalidArgument("progression", "ParseBreakpoints", "bad rate in %q", pair)
		}
		out = append(out, Breakpoint{Level: level, Rate: rate})
	}
	return out, nil
}

func rateEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
