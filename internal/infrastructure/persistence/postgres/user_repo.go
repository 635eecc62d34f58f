package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/docvalidate"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AccountStore implements account.LifecycleStore for PostgreSQL.
type AccountStore struct {
	conn *Connection
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(conn *Connection) *AccountStore {
	return &AccountStore{conn: conn}
}

var _ account.LifecycleStore = (*AccountStore)(nil)

const userColumns = `
	id, profile_id, created_at, role, level, current_xp, COALESCE(year_of_study, ''),
	last_login_streak_claim, daily_quest_completed, login_streak
`

// ListUsers returns one page of user records ordered by (created_at, id).
// Records are returned unvalidated so one malformed row does not hide its
// page; callers validate each record before acting on it.
func (s *AccountStore) ListUsers(ctx context.Context, offset, limit int) ([]account.UserRecord, error) {
	if offset < 0 || limit <= 0 {
		return nil, shared.InvalidArgument("account", "ListUsers", "bad page offset=%d limit=%d", offset, limit)
	}

	query := `SELECT ` + userColumns + `
		FROM user_profiles
		ORDER BY created_at, id
		OFFSET $1 LIMIT $2`

	rows, err := s.conn.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, classify("account", "ListUsers", err)
	}
	defer rows.Close()

	users := make([]account.UserRecord, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify("account", "ListUsers", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("account", "ListUsers", err)
	}

	return users, nil
}

// GetUser returns a user record by id.
func (s *AccountStore) GetUser(ctx context.Context, id string) (*account.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM user_profiles WHERE id = $1`

	u, err := scanUser(s.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classify("account", "GetUser", err)
	}
	if err := docvalidate.Struct("account", "GetUser", u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateProgress writes level, xp and daily claim fields.
func (s *AccountStore) UpdateProgress(ctx context.Context, id string, update account.ProgressUpdate) error {
	if err := docvalidate.Struct("account", "UpdateProgress", update); err != nil {
		return err
	}

	query := `
		UPDATE user_profiles SET
			level = $1,
			current_xp = $2,
			last_login_streak_claim = $3,
			daily_quest_completed = $4,
			login_streak = $5,
			updated_at = NOW()
		WHERE id = $6`

	tag, err := s.conn.Exec(ctx, query,
		update.Level,
		update.CurrentXP,
		update.LastLoginStreakClaim,
		update.DailyQuestCompleted,
		update.LoginStreak,
		id,
	)
	if err != nil {
		return classify("account", "UpdateProgress", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("account", "UpdateProgress", id)
	}
	return nil
}

// DeleteUserIdentity removes the authentication identity of a user.
func (s *AccountStore) DeleteUserIdentity(ctx context.Context, userID string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM user_identities WHERE user_id = $1`, userID)
	if err != nil {
		return classify("account", "DeleteUserIdentity", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("account", "DeleteUserIdentity", userID)
	}
	return nil
}

// DeleteUserProfileDocument removes the profile document, which also removes
// the user record from subsequent listings.
func (s *AccountStore) DeleteUserProfileDocument(ctx context.Context, profileID string) error {
	tag, err := s.conn.Exec(ctx,
		`DELETE FROM user_profiles WHERE id = $1 OR (profile_id <> '' AND profile_id = $1)`, profileID)
	if err != nil {
		return classify("account", "DeleteUserProfileDocument", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("account", "DeleteUserProfileDocument", profileID)
	}
	return nil
}

// InsertUser creates a user record and its identity in one transaction.
// Used by seeding and tests; sign-up lives in the auth service.
func (s *AccountStore) InsertUser(ctx context.Context, u account.UserRecord, email string) error {
	if err := docvalidate.Struct("account", "InsertUser", u); err != nil {
		return err
	}
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var year any
		if u.YearOfStudy != "" {
			year = string(u.YearOfStudy)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO user_profiles (
				id, profile_id, created_at, role, level, current_xp, year_of_study,
				last_login_streak_claim, daily_quest_completed, login_streak
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			u.ID, u.ProfileID, u.CreatedAt, string(u.Role), u.Level, u.CurrentXP, year,
			u.LastLoginStreakClaim, u.DailyQuestCompleted, u.LoginStreak,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.WrapError("account", "InsertUser", shared.ErrConflict, "user already exists", err)
			}
			return classify("account", "InsertUser", err)
		}
		_, err = tx.Exec(ctx, `INSERT INTO user_identities (user_id, email) VALUES ($1, $2)`, u.ID, email)
		return classify("account", "InsertUser", err)
	})
}

func scanUser(row pgx.Row) (*account.UserRecord, error) {
	var (
		u          account.UserRecord
		role, year string
		loginClaim *time.Time
		questDone  *time.Time
	)
	err := row.Scan(
		&u.ID,
		&u.ProfileID,
		&u.CreatedAt,
		&role,
		&u.Level,
		&u.CurrentXP,
		&year,
		&loginClaim,
		&questDone,
		&u.LoginStreak,
	)
	if err != nil {
		return nil, err
	}
	u.Role = shared.Role(role)
	u.YearOfStudy = shared.YearOfStudy(year)
	u.LastLoginStreakClaim = loginClaim
	u.DailyQuestCompleted = questDone
	return &u, nil
}
