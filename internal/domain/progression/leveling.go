package progression

import (
	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVELING
// ══════════════════════════════════════════════════════════════════════════════

const (
	// BaseXP is the XP needed to leave level 1.
	BaseXP = 100

	// XPIncrement is added to the threshold for every level above 1.
	XPIncrement = 50

	// MinLevel is the level every account starts at.
	MinLevel = 1
)

// LevelState is the result of applying an XP gain.
type LevelState struct {
	Level         int `json:"level"`
	CurrentXP     int `json:"current_xp"`
	NextThreshold int `json:"next_threshold"`
}

// LevelsGained returns how many levels separate s from the previous level.
func (s LevelState) LevelsGained(previousLevel int) int {
	if s.Level <= previousLevel {
		return 0
	}
	return s.Level - previousLevel
}

// MaxXPForLevel returns the XP needed to advance past level.
// Levels below 1 are treated as level 1.
func MaxXPForLevel(level int) int {
	if level < MinLevel {
		level = MinLevel
	}
	return BaseXP + (level-1)*XPIncrement
}

// ApplyXPGain adds gained to currentXP and rolls the surplus over as many
// level thresholds as it covers. A zero gain returns the state unchanged.
func ApplyXPGain(level, currentXP, gained int) (LevelState, error) {
	if level < MinLevel {
		return LevelState{}, shared.InvalidArgument("progression", "ApplyXPGain", "level must be >= %d, got %d", MinLevel, level)
	}
	if currentXP < 0 {
		return LevelState{}, shared.InvalidArgument("progression", "ApplyXPGain", "current xp must be >= 0, got %d", currentXP)
	}
	if gained < 0 {
		return LevelState{}, shared.InvalidArgument("progression", "ApplyXPGain", "gained xp must be >= 0, got %d", gained)
	}

	xp := currentXP + gained
	threshold := MaxXPForLevel(level)
	for xp >= threshold {
		xp -= threshold
		level++
		threshold = MaxXPForLevel(level)
	}

	return LevelState{Level: level, CurrentXP: xp, NextThreshold: threshold}, nil
}

// XPToNextLevel returns how much XP is still missing for the next level.
func XPToNextLevel(level, currentXP int) int {
	remaining := MaxXPForLevel(level) - currentXP
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ProgressPercent returns the share of the current level already earned, 0..100.
func ProgressPercent(level, currentXP int) float64 {
	if currentXP <= 0 {
		return 0
	}
	p := float64(currentXP) / float64(MaxXPForLevel(level)) * 100
	if p > 100 {
		return 100
	}
	return p
}
