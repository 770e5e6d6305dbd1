package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/pellucid/hearth/pkg/types"
)

// GetUserByEmail looks up a user by case-folded email. Returns ErrNotFound
// if absent.
func (s *Store) GetUserByEmail(email string) (*types.User, error) {
	row := s.db.QueryRow(`
		SELECT id, email, name, account_type, discord_user_id, locale, timezone, created_at, updated_at
		FROM users WHERE email = ?`, strings.ToLower(email))
	return scanUser(row)
}

// GetUser looks up a user by id. Returns ErrNotFound if absent.
func (s *Store) GetUser(id string) (*types.User, error) {
	row := s.db.QueryRow(`
		SELECT id, email, name, account_type, discord_user_id, locale, timezone, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*types.User, error) {
	var u types.User
	var name, discordID, locale, timezone sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&u.ID, &u.Email, &name, &u.AccountType, &discordID, &locale, &timezone, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	u.DiscordUserID = discordID.String
	u.Locale = locale.String
	u.Timezone = timezone.String
	u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	u.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user with a case-folded email. Fails with a
// UNIQUE constraint error if the email is already taken.
func (s *Store) CreateUser(u *types.User) error {
	now := nowStamp()
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt, u.UpdatedAt = mustParse(now), mustParse(now)
	_, err := s.exec(`
		INSERT INTO users (id, email, name, account_type, discord_user_id, locale, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.AccountType, u.DiscordUserID, u.Locale, u.Timezone, now, now)
	return err
}

// UpdateUserProfile updates the mutable self-service fields: discordUserId,
// locale, timezone.
func (s *Store) UpdateUserProfile(userID, discordUserID, locale, timezone string) error {
	_, err := s.exec(`
		UPDATE users SET discord_user_id = ?, locale = ?, timezone = ?, updated_at = ?
		WHERE id = ?`, discordUserID, locale, timezone, nowStamp(), userID)
	return err
}

// SetUserAccountType promotes/demotes the account type, used when an
// individual user accepts a group invitation.
func (s *Store) SetUserAccountType(userID string, accountType types.AccountType) error {
	_, err := s.exec(`UPDATE users SET account_type = ?, updated_at = ? WHERE id = ?`,
		accountType, nowStamp(), userID)
	return err
}

func mustParse(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

// CreateSession inserts a new login session with the given TTL.
func (s *Store) CreateSession(sess *types.Session, ttl time.Duration) error {
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(ttl)
	_, err := s.exec(`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.ExpiresAt.Format(time.RFC3339Nano), sess.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// GetSession returns the session if present and unexpired. An expired
// session is deleted and ErrNotFound is returned, per spec's "treated as
// absent" invariant.
func (s *Store) GetSession(id string) (*types.Session, error) {
	row := s.db.QueryRow(`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = ?`, id)

	var sess types.Session
	var expiresAt, createdAt string
	err := row.Scan(&sess.ID, &sess.UserID, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return nil, err
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}

	if sess.Expired(time.Now().UTC()) {
		_, _ = s.exec(`DELETE FROM sessions WHERE id = ?`, id)
		return nil, ErrNotFound
	}
	return &sess, nil
}

// DeleteSession removes a session (logout).
func (s *Store) DeleteSession(id string) error {
	_, err := s.exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// GetSetting returns a per-user setting value, or "" if unset.
func (s *Store) GetSetting(userID, key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE user_id = ? AND key = ?`, userID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting upserts a per-user setting value.
func (s *Store) SetSetting(userID, key, value string) error {
	_, err := s.exec(`
		INSERT INTO settings (user_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value`,
		userID, key, value)
	return err
}
