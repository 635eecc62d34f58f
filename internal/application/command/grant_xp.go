package command

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/session"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT XP COMMAND
// Awards XP for a reward event and levels the user up.
// ══════════════════════════════════════════════════════════════════════════════

// GrantXPCommand names the reward being claimed. UserID defaults to the
// session user; granting to someone else needs a privileged session.
type GrantXPCommand struct {
	UserID string
	Kind   progression.RewardKind
}

// Validate validates the command.
func (c GrantXPCommand) Validate() error {
	if !c.Kind.IsValid() {
		return shared.InvalidArgument("progression", "GrantXP", "unknown reward kind %q", c.Kind)
	}
	return nil
}

// GrantXPResult contains the state after the grant.
type GrantXPResult struct {
	UserID        string                 `json:"user_id"`
	Kind          progression.RewardKind `json:"kind"`
	XPGained      int                    `json:"xp_gained"`
	Level         int                    `json:"level"`
	CurrentXP     int                    `json:"current_xp"`
	NextThreshold int                    `json:"next_threshold"`
	LevelsGained  int                    `json:"levels_gained"`
	LoginStreak   int                    `json:"login_streak"`
}

// ProgressStore is what GrantXP reads and writes.
type ProgressStore interface {
	GetUser(ctx context.Context, id string) (*account.UserRecord, error)
	UpdateProgress(ctx context.Context, id string, update account.ProgressUpdate) error
}

// userLockStripes bounds the per-user lock table.
const userLockStripes = 64

// GrantXPHandler handles GrantXPCommand.
type GrantXPHandler struct {
	store   ProgressStore
	rewards progression.RewardTable
	logger  *slog.Logger
	now     func() time.Time

	// Serialises read-modify-write per user within this process.
	locks [userLockStripes]sync.Mutex
}

// NewGrantXPHandler creates a new GrantXPHandler.
func NewGrantXPHandler(store ProgressStore, rewards progression.RewardTable, logger *slog.Logger) *GrantXPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrantXPHandler{
		store:   store,
		rewards: rewards,
		logger:  logger,
		now:     timeutil.Now,
	}
}

// Handle executes the grant. A daily reward claimed twice on the same campus
// day returns shared.ErrAlreadyClaimed and writes nothing.
func (h *GrantXPHandler) Handle(ctx context.Context, cmd GrantXPCommand) (*GrantXPResult, error) {
	sess, err := session.Require(ctx)
	if err != nil {
		return nil, err
	}
	if cmd.UserID == "" {
		cmd.UserID = sess.UserID
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if !sess.CanActFor(cmd.UserID) {
		return nil, shared.NewDomainError("progression", "GrantXP", shared.ErrForbidden,
			"session may not grant xp to another user")
	}

	mu := h.lockFor(cmd.UserID)
	mu.Lock()
	defer mu.Unlock()

	user, err := h.store.GetUser(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	claim, err := h.rewards.Claim(cmd.Kind, user.Claims(), h.now())
	if err != nil {
		return nil, err
	}

	state, err := progression.ApplyXPGain(user.Level, user.CurrentXP, claim.XP)
	if err != nil {
		return nil, err
	}

	if err := h.store.UpdateProgress(ctx, user.ID, account.NewProgressUpdate(state, claim.Claims)); err != nil {
		return nil, err
	}

	result := &GrantXPResult{
		UserID:        user.ID,
		Kind:          cmd.Kind,
		XPGained:      claim.XP,
		Level:         state.Level,
		CurrentXP:     state.CurrentXP,
		NextThreshold: state.NextThreshold,
		LevelsGained:  state.LevelsGained(user.Level),
		LoginStreak:   claim.Claims.LoginStreak,
	}

	logger := h.logger.With("user_id", user.ID, "kind", string(cmd.Kind), "request_id", sess.RequestID)
	if result.LevelsGained > 0 {
		logger.Info("level up", "from", user.Level, "to", state.Level, "xp", claim.XP)
	} else {
		logger.Debug("xp granted", "xp", claim.XP, "current_xp", state.CurrentXP)
	}

	return result, nil
}

func (h *GrantXPHandler) lockFor(userID string) *sync.Mutex {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return &h.locks[f.Sum32()%userLockStripes]
}
