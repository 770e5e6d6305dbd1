package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pellucid/hearth/pkg/types"
)

// UpsertMCPServer inserts or replaces a user's MCP server config, keyed by
// id (the "<baseId>~<accountEmail>" convention lives in the id itself, not
// in this layer).
func (s *Store) UpsertMCPServer(cfg *types.MCPServerConfig) error {
	payload, err := json.Marshal(cfg.Config)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	cfg.UpdatedAt = now
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}

	_, err = s.exec(`
		INSERT INTO mcp_servers (id, user_id, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		cfg.ID, cfg.UserID, string(payload), cfg.CreatedAt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	return err
}

// GetMCPServer returns a single MCP server config by id.
func (s *Store) GetMCPServer(id string) (*types.MCPServerConfig, error) {
	row := s.db.QueryRow(`SELECT id, user_id, config, created_at, updated_at FROM mcp_servers WHERE id = ?`, id)
	return scanMCPServer(row)
}

func scanMCPServer(row *sql.Row) (*types.MCPServerConfig, error) {
	var cfg types.MCPServerConfig
	var payload, createdAt, updatedAt string
	err := row.Scan(&cfg.ID, &cfg.UserID, &payload, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &cfg.Config); err != nil {
		return nil, err
	}
	if cfg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if cfg.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListMCPServers returns all MCP server configs owned by userID.
func (s *Store) ListMCPServers(userID string) ([]types.MCPServerConfig, error) {
	rows, err := s.db.Query(`SELECT id, user_id, config, created_at, updated_at FROM mcp_servers WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.MCPServerConfig
	for rows.Next() {
		var cfg types.MCPServerConfig
		var payload, createdAt, updatedAt string
		if err := rows.Scan(&cfg.ID, &cfg.UserID, &payload, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &cfg.Config); err != nil {
			return nil, err
		}
		if cfg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		if cfg.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// DeleteMCPServer removes a user's MCP server config.
func (s *Store) DeleteMCPServer(id string) error {
	_, err := s.exec(`DELETE FROM mcp_servers WHERE id = ?`, id)
	return err
}
