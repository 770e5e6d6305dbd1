package store

import (
	"database/sql"
	"encoding/json"

	"github.com/pellucid/hearth/pkg/types"
)

// UpsertSkill inserts or replaces a skill definition.
func (s *Store) UpsertSkill(sk *types.Skill) error {
	configJSON, err := json.Marshal(sk.Config)
	if err != nil {
		return err
	}
	_, err = s.exec(`
		INSERT INTO skills (id, name, description, content, type, config, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, content = excluded.content,
			type = excluded.type, config = excluded.config, enabled = excluded.enabled`,
		sk.ID, sk.Name, nullString(sk.Description), sk.Content, sk.Type, string(configJSON), boolToInt(sk.Enabled))
	return err
}

// GetSkill returns a single skill by id.
func (s *Store) GetSkill(id string) (*types.Skill, error) {
	row := s.db.QueryRow(`SELECT id, name, description, content, type, config, enabled FROM skills WHERE id = ?`, id)
	return scanSkill(row)
}

// ListSkills returns every skill in the catalog.
func (s *Store) ListSkills() ([]types.Skill, error) {
	rows, err := s.db.Query(`SELECT id, name, description, content, type, config, enabled FROM skills`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Skill
	for rows.Next() {
		var sk types.Skill
		var description sql.NullString
		var configJSON sql.NullString
		var enabled int
		if err := rows.Scan(&sk.ID, &sk.Name, &description, &sk.Content, &sk.Type, &configJSON, &enabled); err != nil {
			return nil, err
		}
		sk.Description = description.String
		sk.Enabled = enabled != 0
		if configJSON.Valid && configJSON.String != "" && configJSON.String != "null" {
			if err := json.Unmarshal([]byte(configJSON.String), &sk.Config); err != nil {
				return nil, err
			}
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

func scanSkill(row *sql.Row) (*types.Skill, error) {
	var sk types.Skill
	var description sql.NullString
	var configJSON sql.NullString
	var enabled int
	err := row.Scan(&sk.ID, &sk.Name, &description, &sk.Content, &sk.Type, &configJSON, &enabled)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sk.Description = description.String
	sk.Enabled = enabled != 0
	if configJSON.Valid && configJSON.String != "" && configJSON.String != "null" {
		if err := json.Unmarshal([]byte(configJSON.String), &sk.Config); err != nil {
			return nil, err
		}
	}
	return &sk, nil
}

// SetSkillEnabled toggles a skill's catalog-wide enabled flag.
func (s *Store) SetSkillEnabled(id string, enabled bool) error {
	_, err := s.exec(`UPDATE skills SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	return err
}

// SetRoleSkillEnabled overrides a skill's enablement for one role, layered
// on top of the catalog-wide flag: a role with no row here inherits the
// skill's catalog default.
func (s *Store) SetRoleSkillEnabled(roleID, skillID string, enabled bool) error {
	_, err := s.exec(`
		INSERT INTO role_skills (role_id, skill_id, enabled) VALUES (?, ?, ?)
		ON CONFLICT(role_id, skill_id) DO UPDATE SET enabled = excluded.enabled`,
		roleID, skillID, boolToInt(enabled))
	return err
}

// RoleSkillOverrides returns this role's per-skill enablement overrides,
// keyed by skill id.
func (s *Store) RoleSkillOverrides(roleID string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT skill_id, enabled FROM role_skills WHERE role_id = ?`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var skillID string
		var enabled int
		if err := rows.Scan(&skillID, &enabled); err != nil {
			return nil, err
		}
		out[skillID] = enabled != 0
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
