package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

func TestRateForLevel_Breakpoints(t *testing.T) {
	calc := DefaultCommissionCalculator()

	assert.InDelta(t, 0.1132, calc.RateForLevel(1), 1e-9)
	assert.InDelta(t, 0.1036, calc.RateForLevel(7), 1e-9)
	assert.InDelta(t, 0.1000, calc.RateForLevel(20), 1e-9)
	assert.InDelta(t, 0.0800, calc.RateForLevel(50), 1e-9)
	assert.InDelta(t, 0.0534, calc.RateForLevel(100), 1e-9)
}

func TestRateForLevel_Clamps(t *testing.T) {
	calc := DefaultCommissionCalculator()

	assert.InDelta(t, DefaultStartRate, calc.RateForLevel(0), 1e-9)
	assert.InDelta(t, DefaultStartRate, calc.RateForLevel(-3), 1e-9)
	assert.InDelta(t, DefaultMinRate, calc.RateForLevel(101), 1e-9)
	assert.InDelta(t, DefaultMinRate, calc.RateForLevel(10_000), 1e-9)
}

func TestRateForLevel_Interpolates(t *testing.T) {
	calc := DefaultCommissionCalculator()

	assert.InDelta(t, 0.1084, calc.RateForLevel(4), 1e-9)
	assert.InDelta(t, 0.0900, calc.RateForLevel(35), 1e-9)
	assert.InDelta(t, 0.0667, calc.RateForLevel(75), 1e-9)
}

func TestRateForLevel_NonIncreasing(t *testing.T) {
	calc := DefaultCommissionCalculator()

	for l := -5; l < 200; l++ {
		cur, next := calc.RateForLevel(l), calc.RateForLevel(l+1)
		assert.LessOrEqual(t, next, cur+1e-12, "level %d", l)
		assert.GreaterOrEqual(t, cur, DefaultMinRate-1e-12)
		assert.LessOrEqual(t, cur, DefaultStartRate+1e-12)
	}
}

func TestNewCommissionCalculator_Validation(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		min   float64
		bps   []Breakpoint
	}{
		{"single breakpoint", 0.1, 0.1, []Breakpoint{{1, 0.1}}},
		{"levels not increasing", 0.1, 0.05, []Breakpoint{{1, 0.1}, {1, 0.05}}},
		{"rate increases", 0.1, 0.05, []Breakpoint{{1, 0.1}, {5, 0.12}, {10, 0.05}}},
		{"first rate mismatch", 0.2, 0.05, []Breakpoint{{1, 0.1}, {10, 0.05}}},
		{"last rate mismatch", 0.1, 0.01, []Breakpoint{{1, 0.1}, {10, 0.05}}},
		{"min above start", 0.05, 0.1, []Breakpoint{{1, 0.05}, {10, 0.1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCommissionCalculator(tt.start, tt.min, tt.bps)
			assert.ErrorIs(t, err, shared.ErrInvalidArgument)
		})
	}
}

func TestSplit(t *testing.T) {
	calc := DefaultCommissionCalculator()

	split, err := calc.Split(10_000, 7)
	require.NoError(t, err)
	assert.Equal(t, shared.Money(1036), split.Commission)
	assert.Equal(t, shared.Money(8964), split.Net)
	assert.InDelta(t, 0.1036, split.Rate, 1e-9)

	split, err = calc.Split(999, 1)
	require.NoError(t, err)
	assert.Equal(t, shared.Money(113), split.Commission)
	assert.Equal(t, split.Commission+split.Net, shared.Money(999))

	_, err = calc.Split(-1, 1)
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestParseBreakpoints(t *testing.T) {
	bps, err := ParseBreakpoints("1:0.1132, 7:0.1036,100:0.0534")
	require.NoError(t, err)
	assert.Equal(t, []Breakpoint{{1, 0.1132}, {7, 0.1036}, {100, 0.0534}}, bps)

	_, err = ParseBreakpoints("1=0.1")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = ParseBreakpoints("x:0.1")
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}
