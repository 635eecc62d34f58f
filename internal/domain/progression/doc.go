// Package progression holds the pure engines behind a user's standing on the
// marketplace:
//
//   - Leveling: XP thresholds and level-ups (MaxXPForLevel, ApplyXPGain)
//   - Commission: the level-based platform fee (CommissionCalculator)
//   - Graduation: tenure countdown and the deletion predicate (GraduationClock)
//   - Rewards: XP amounts and once-per-day guards for XP-granting events
//
// Everything here is deterministic and safe for concurrent use. Time is always
// passed in by the caller; nothing in this package reads the wall clock.
//
// # Leveling
//
//	state, err := progression.ApplyXPGain(user.Level, user.CurrentXP, 25)
//	// state.Level, state.CurrentXP, state.NextThreshold
//
// # Commission
//
//	calc := progression.DefaultCommissionCalculator()
//	rate := calc.RateForLevel(seller.Level)
//
// # Graduation
//
//	clock := progression.DefaultGraduationClock()
//	status, err := clock.ComputeStatus(user.CreatedAt, time.Now())
//	if status.IsGraduated { ... }
package progression
