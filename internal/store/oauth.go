package store

import (
	"database/sql"
	"time"

	"github.com/pellucid/hearth/pkg/types"
)

// UpsertOAuthToken writes or updates a token for (provider, userId,
// accountEmail). If accountEmail is non-empty and a stale empty-email row
// exists for the same (provider, userId), it is deleted first — such a row
// is one written with an empty accountEmail, e.g. when a provider's
// identity lookup returned no email.
func (s *Store) UpsertOAuthToken(t *types.OAuthToken) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if t.AccountEmail != "" {
		if _, err := tx.Exec(`DELETE FROM oauth_tokens WHERE provider = ? AND user_id = ? AND account_email = ''`,
			t.Provider, t.UserID); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	t.UpdatedAt = now
	if _, err := tx.Exec(`
		INSERT INTO oauth_tokens (provider, user_id, account_email, access_token, refresh_token, expiry_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, user_id, account_email) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry_date = excluded.expiry_date,
			updated_at = excluded.updated_at`,
		t.Provider, t.UserID, t.AccountEmail, t.AccessToken, nullString(t.RefreshToken),
		nullTime(t.ExpiryDate), nullTimeOrNow(t.CreatedAt, now), now.Format(time.RFC3339Nano)); err != nil {
		return err
	}

	return tx.Commit()
}

func nullTimeOrNow(t time.Time, now time.Time) string {
	if t.IsZero() {
		return now.Format(time.RFC3339Nano)
	}
	return t.Format(time.RFC3339Nano)
}

// GetOAuthToken returns the token for (provider, userID, accountEmail).
func (s *Store) GetOAuthToken(provider, userID, accountEmail string) (*types.OAuthToken, error) {
	row := s.db.QueryRow(`
		SELECT provider, user_id, account_email, access_token, refresh_token, expiry_date, created_at, updated_at
		FROM oauth_tokens WHERE provider = ? AND user_id = ? AND account_email = ?`,
		provider, userID, accountEmail)
	return scanOAuthToken(row)
}

// GetOAuthTokenByAccountEmail is an alias kept distinct from GetOAuthToken
// for call sites that only know the email, not whether it's the sole
// account — both query the same unique key.
func (s *Store) GetOAuthTokenByAccountEmail(provider, userID, accountEmail string) (*types.OAuthToken, error) {
	return s.GetOAuthToken(provider, userID, accountEmail)
}

func scanOAuthToken(row *sql.Row) (*types.OAuthToken, error) {
	var t types.OAuthToken
	var refreshToken sql.NullString
	var expiryDate sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&t.Provider, &t.UserID, &t.AccountEmail, &t.AccessToken, &refreshToken, &expiryDate, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.RefreshToken = refreshToken.String
	if t.ExpiryDate, err = parseNullTime(expiryDate); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListOAuthConnections groups the user's connected accounts by provider,
// for the listConnections endpoint.
func (s *Store) ListOAuthConnections(userID string) (map[string][]string, error) {
	rows, err := s.db.Query(`SELECT provider, account_email FROM oauth_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var provider, email string
		if err := rows.Scan(&provider, &email); err != nil {
			return nil, err
		}
		out[provider] = append(out[provider], email)
	}
	return out, rows.Err()
}

// RevokeOAuthToken deletes a single connected account's token.
func (s *Store) RevokeOAuthToken(provider, userID, accountEmail string) error {
	_, err := s.exec(`DELETE FROM oauth_tokens WHERE provider = ? AND user_id = ? AND account_email = ?`,
		provider, userID, accountEmail)
	return err
}
