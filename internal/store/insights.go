package store

import (
	"database/sql"
	"time"

	"github.com/pellucid/hearth/pkg/types"
)

// UpsertInsight inserts an insight, or silently leaves an existing row
// with the same (role_id, content_hash) untouched — the dedupe contract
// C6's extract operation depends on. Returns whether a new row was
// actually inserted.
func (s *Store) UpsertInsight(in *types.Insight) (inserted bool, err error) {
	now := time.Now().UTC()
	in.CreatedAt, in.UpdatedAt = now, now
	res, err := s.exec(`
		INSERT INTO insights (id, role_id, content_hash, text, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(role_id, content_hash) DO NOTHING`,
		in.ID, in.RoleID, in.ContentHash, in.Text, string(in.Source),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListInsights returns every insight for roleID, oldest first.
func (s *Store) ListInsights(roleID string) ([]types.Insight, error) {
	rows, err := s.db.Query(`
		SELECT id, role_id, content_hash, text, source, created_at, updated_at
		FROM insights WHERE role_id = ? ORDER BY created_at ASC`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// CountInsights returns how many insights roleID currently has — the
// generation signal the memory service's overview cache keys off of.
func (s *Store) CountInsights(roleID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM insights WHERE role_id = ?`, roleID).Scan(&n)
	return n, err
}

// DeleteInsight removes a single insight by id.
func (s *Store) DeleteInsight(id string) error {
	_, err := s.exec(`DELETE FROM insights WHERE id = ?`, id)
	return err
}

// UpdateInsightText rewrites an insight's text and content hash in place
// (used by the edit operation), preserving its id and created_at.
func (s *Store) UpdateInsightText(id, text, contentHash string) error {
	_, err := s.exec(`
		UPDATE insights SET text = ?, content_hash = ?, updated_at = ?
		WHERE id = ?`, text, contentHash, nowStamp(), id)
	return err
}

func scanInsight(row interface{ Scan(...any) error }) (*types.Insight, error) {
	var in types.Insight
	var source, createdAt, updatedAt string
	if err := row.Scan(&in.ID, &in.RoleID, &in.ContentHash, &in.Text, &source, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	in.Source = types.InsightSource(source)
	var err error
	if in.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if in.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &in, nil
}
