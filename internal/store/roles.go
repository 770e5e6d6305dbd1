package store

import (
	"database/sql"
	"time"

	"github.com/pellucid/hearth/pkg/types"
)

// CreateRole inserts a new role.
func (s *Store) CreateRole(r *types.Role) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := s.exec(`
		INSERT INTO roles (id, user_id, group_id, name, job_desc, system_prompt, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, nullString(r.GroupID), r.Name, nullString(r.JobDesc),
		nullString(r.SystemPrompt), nullString(r.Model), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	return err
}

// GetRole returns a single role by id.
func (s *Store) GetRole(id string) (*types.Role, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, group_id, name, job_desc, system_prompt, model, created_at, updated_at
		FROM roles WHERE id = ?`, id)
	return scanRole(row)
}

// ListRoles returns all roles owned by userID.
func (s *Store) ListRoles(userID string) ([]types.Role, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, group_id, name, job_desc, system_prompt, model, created_at, updated_at
		FROM roles WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Role
	for rows.Next() {
		var r types.Role
		var groupID, jobDesc, systemPrompt, model sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.UserID, &groupID, &r.Name, &jobDesc, &systemPrompt, &model, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.GroupID, r.JobDesc, r.SystemPrompt, r.Model = groupID.String, jobDesc.String, systemPrompt.String, model.String
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRole(row *sql.Row) (*types.Role, error) {
	var r types.Role
	var groupID, jobDesc, systemPrompt, model sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.UserID, &groupID, &r.Name, &jobDesc, &systemPrompt, &model, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.GroupID, r.JobDesc, r.SystemPrompt, r.Model = groupID.String, jobDesc.String, systemPrompt.String, model.String
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRole updates the mutable fields of a role.
func (s *Store) UpdateRole(r *types.Role) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := s.exec(`
		UPDATE roles SET name = ?, job_desc = ?, system_prompt = ?, model = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, nullString(r.JobDesc), nullString(r.SystemPrompt), nullString(r.Model),
		r.UpdatedAt.Format(time.RFC3339Nano), r.ID)
	return err
}

// DeleteRole removes a role and its messages — the cascade the spec's
// ownership summary names for a Role's owned rows.
func (s *Store) DeleteRole(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE role_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM roles WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
