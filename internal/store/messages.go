package store

import (
	"database/sql"
	"time"

	"github.com/pellucid/hearth/pkg/types"
)

// SaveMessage inserts a message, idempotent on id: a retried save (e.g. a
// client retry after a dropped response) is a silent no-op.
func (s *Store) SaveMessage(m *types.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(`
		INSERT OR IGNORE INTO messages (id, user_id, role_id, group_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.RoleID, nullString(m.GroupID), m.Role, m.Content, m.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// DefaultMessagesLimit is the page size used when Limit is nil (the
// caller didn't supply a limit at all).
const DefaultMessagesLimit = 50

// ListMessagesOpts bounds a message history read. Limit distinguishes "not
// provided" (nil, defaults to DefaultMessagesLimit) from an explicit zero
// (spec.md §8: "limit=0 returns empty, not an error"). Before is the id of
// a message already seen by the caller; the page returned is strictly
// older than that message, so paging by the oldest id of the previous page
// naturally yields an empty page once nothing older exists.
type ListMessagesOpts struct {
	Limit  *int
	Before string
}

// ListMessages returns up to Limit messages for (userID, roleID) ordered
// ascending by CreatedAt — the order the turn orchestrator feeds the
// provider — plus whether more, older messages exist beyond the page.
// Rows are fetched DESC (most recent first) to apply the window, then
// reversed, since "the most recent N" and "oldest-first" pull in opposite
// directions.
func (s *Store) ListMessages(userID, roleID string, opts ListMessagesOpts) ([]types.Message, bool, error) {
	limit := DefaultMessagesLimit
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	if limit <= 0 {
		return []types.Message{}, false, nil
	}

	query := `
		SELECT id, user_id, role_id, group_id, role, content, created_at
		FROM messages WHERE user_id = ? AND role_id = ?`
	args := []any{userID, roleID}
	if opts.Before != "" {
		cutoff, ok, err := s.messageCreatedAt(userID, roleID, opts.Before)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return []types.Message{}, false, nil
		}
		query += ` AND created_at < ?`
		args = append(args, cutoff)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, false, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, hasMore, nil
}

// messageCreatedAt looks up the created_at cursor value for a Before id
// scoped to (userID, roleID); ok is false if no such message exists.
func (s *Store) messageCreatedAt(userID, roleID, id string) (string, bool, error) {
	var createdAt string
	err := s.db.QueryRow(
		`SELECT created_at FROM messages WHERE id = ? AND user_id = ? AND role_id = ?`,
		id, userID, roleID,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return createdAt, true, nil
}

func scanMessage(rows *sql.Rows) (*types.Message, error) {
	var m types.Message
	var groupID sql.NullString
	var createdAt string
	if err := rows.Scan(&m.ID, &m.UserID, &m.RoleID, &groupID, &m.Role, &m.Content, &createdAt); err != nil {
		return nil, err
	}
	m.GroupID = groupID.String
	var err error
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// SearchMessages finds messages for (userID, roleID) whose content contains
// keyword, most recent first.
func (s *Store) SearchMessages(userID, roleID, keyword string) ([]types.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, role_id, group_id, role, content, created_at
		FROM messages
		WHERE user_id = ? AND role_id = ? AND content LIKE ?
		ORDER BY created_at DESC`,
		userID, roleID, "%"+keyword+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// ClearMessages deletes all messages for (userID, roleID) — used by the
// server's clear-history endpoint.
func (s *Store) ClearMessages(userID, roleID string) error {
	_, err := s.exec(`DELETE FROM messages WHERE user_id = ? AND role_id = ?`, userID, roleID)
	return err
}
