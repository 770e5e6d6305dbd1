package store

import (
	"fmt"
)

// migrate creates the schema if absent, then performs additive, idempotent
// migration: missing columns are detected via PRAGMA table_info and added
// with ALTER TABLE ADD COLUMN. A change that needs a new UNIQUE constraint
// goes through the copy-into-shadow-table-and-rename pattern instead, since
// SQLite can't ALTER a constraint in place.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE,
			name            TEXT,
			account_type    TEXT NOT NULL DEFAULT 'individual',
			discord_user_id TEXT,
			locale          TEXT,
			timezone        TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

		CREATE TABLE IF NOT EXISTS groups (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			url        TEXT UNIQUE,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS memberships (
			group_id TEXT NOT NULL REFERENCES groups(id),
			user_id  TEXT NOT NULL REFERENCES users(id),
			role     TEXT NOT NULL DEFAULT 'member',
			PRIMARY KEY (group_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS invitations (
			id         TEXT PRIMARY KEY,
			code       TEXT NOT NULL UNIQUE,
			group_id   TEXT NOT NULL REFERENCES groups(id),
			created_by TEXT NOT NULL REFERENCES users(id),
			email      TEXT,
			role       TEXT NOT NULL DEFAULT 'member',
			expires_at TEXT,
			used_at    TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS roles (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL REFERENCES users(id),
			group_id      TEXT REFERENCES groups(id),
			name          TEXT NOT NULL,
			job_desc      TEXT,
			system_prompt TEXT,
			model         TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_roles_user ON roles(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			role_id    TEXT NOT NULL,
			group_id   TEXT,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_role_created ON messages(role_id, created_at);

		CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider      TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			account_email TEXT NOT NULL DEFAULT '',
			access_token  TEXT NOT NULL,
			refresh_token TEXT,
			expiry_date   TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			PRIMARY KEY (provider, user_id, account_email)
		);
		CREATE INDEX IF NOT EXISTS idx_oauth_tokens_user ON oauth_tokens(user_id);

		CREATE TABLE IF NOT EXISTS mcp_servers (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			config     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_mcp_servers_user ON mcp_servers(user_id);

		CREATE TABLE IF NOT EXISTS skills (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT,
			content     TEXT NOT NULL,
			type        TEXT NOT NULL,
			config      TEXT,
			enabled     INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			role_id       TEXT NOT NULL,
			description   TEXT NOT NULL,
			schedule_type TEXT NOT NULL,
			run_at        TEXT,
			status        TEXT NOT NULL DEFAULT 'pending',
			last_run_at   TEXT,
			last_error    TEXT,
			hold_until    TEXT,
			run_count     INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_user_status ON scheduled_jobs(user_id, status);
		CREATE INDEX IF NOT EXISTS idx_jobs_runat_status ON scheduled_jobs(run_at, status);

		CREATE TABLE IF NOT EXISTS settings (
			user_id TEXT NOT NULL,
			key     TEXT NOT NULL,
			value   TEXT NOT NULL,
			PRIMARY KEY (user_id, key)
		);

		CREATE TABLE IF NOT EXISTS insights (
			id            TEXT PRIMARY KEY,
			role_id       TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			text          TEXT NOT NULL,
			source        TEXT NOT NULL DEFAULT 'extract',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			UNIQUE (role_id, content_hash)
		);
		CREATE INDEX IF NOT EXISTS idx_insights_role ON insights(role_id);

		CREATE TABLE IF NOT EXISTS role_skills (
			role_id  TEXT NOT NULL,
			skill_id TEXT NOT NULL,
			enabled  INTEGER NOT NULL,
			PRIMARY KEY (role_id, skill_id)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Additive column migrations, applied in order as the schema has grown.
	// Each is a no-op once the column exists, so re-running migrate() on an
	// up-to-date database costs only the PRAGMA introspection queries.
	columnMigrations := []struct {
		table      string
		column     string
		definition string
	}{
		{"users", "discord_user_id", "TEXT"},
		{"users", "locale", "TEXT"},
		{"users", "timezone", "TEXT"},
		{"roles", "model", "TEXT"},
		{"scheduled_jobs", "hold_until", "TEXT"},
	}
	for _, m := range columnMigrations {
		if err := s.addColumnIfNotExists(m.table, m.column, m.definition); err != nil {
			return err
		}
	}

	if err := s.migrateOAuthTokensAccountEmailKey(); err != nil {
		return err
	}

	return nil
}

// addColumnIfNotExists inspects table via PRAGMA table_info and, if column
// is absent, adds it. Idempotent: a subsequent call is a silent no-op.
func (s *Store) addColumnIfNotExists(table, column, definition string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var defaultValue any
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

// migrateOAuthTokensAccountEmailKey guards against an oauth_tokens table
// created before account_email joined the primary key (an older single
// (provider, user_id) key). SQLite can't alter a primary key in place, so
// this copies into a shadow table carrying the new key, then swaps it in.
// Idempotent: once the shadow column is in the primary key, pkColumnCount
// matches and migration is skipped.
func (s *Store) migrateOAuthTokensAccountEmailKey() error {
	rows, err := s.db.Query(`PRAGMA table_info(oauth_tokens)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	pkColumnCount := 0
	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var defaultValue any
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		if pk > 0 {
			pkColumnCount++
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Fresh installs already create the 3-column key; nothing to do.
	if pkColumnCount >= 3 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("migrate oauth_tokens key: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		CREATE TABLE oauth_tokens_migrated (
			provider      TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			account_email TEXT NOT NULL DEFAULT '',
			access_token  TEXT NOT NULL,
			refresh_token TEXT,
			expiry_date   TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			PRIMARY KEY (provider, user_id, account_email)
		);
	`); err != nil {
		return fmt.Errorf("migrate oauth_tokens key: create shadow: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO oauth_tokens_migrated
		SELECT provider, user_id, COALESCE(account_email, ''), access_token,
		       refresh_token, expiry_date, created_at, updated_at
		FROM oauth_tokens;
	`); err != nil {
		return fmt.Errorf("migrate oauth_tokens key: copy rows: %w", err)
	}

	if _, err := tx.Exec(`DROP TABLE oauth_tokens`); err != nil {
		return fmt.Errorf("migrate oauth_tokens key: drop old: %w", err)
	}
	if _, err := tx.Exec(`ALTER TABLE oauth_tokens_migrated RENAME TO oauth_tokens`); err != nil {
		return fmt.Errorf("migrate oauth_tokens key: rename: %w", err)
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_oauth_tokens_user ON oauth_tokens(user_id)`); err != nil {
		return fmt.Errorf("migrate oauth_tokens key: recreate index: %w", err)
	}

	return tx.Commit()
}
