package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pellucid/hearth/pkg/types"
)

// CreateGroupWithOwner creates a group, an owner membership for userID, and
// one invitation in a single transaction — the atomic unit signup_group
// needs so a half-created group is never observable.
func (s *Store) CreateGroupWithOwner(group *types.Group, ownerUserID string, invitation *types.Invitation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	group.CreatedAt = now
	if _, err := tx.Exec(`INSERT INTO groups (id, name, url, created_at) VALUES (?, ?, ?, ?)`,
		group.ID, group.Name, nullString(group.URL), now.Format(time.RFC3339Nano)); err != nil {
		return err
	}

	if _, err := tx.Exec(`INSERT INTO memberships (group_id, user_id, role) VALUES (?, ?, ?)`,
		group.ID, ownerUserID, types.MembershipOwner); err != nil {
		return err
	}

	invitation.GroupID = group.ID
	invitation.CreatedBy = ownerUserID
	invitation.CreatedAt = now
	if _, err := tx.Exec(`
		INSERT INTO invitations (id, code, group_id, created_by, email, role, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invitation.ID, invitation.Code, invitation.GroupID, invitation.CreatedBy,
		nullString(invitation.Email), invitation.Role, nullTime(invitation.ExpiresAt), now.Format(time.RFC3339Nano)); err != nil {
		return err
	}

	return tx.Commit()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetInvitationByCode looks up an invitation by its opaque code.
func (s *Store) GetInvitationByCode(code string) (*types.Invitation, error) {
	row := s.db.QueryRow(`
		SELECT id, code, group_id, created_by, email, role, expires_at, used_at, created_at
		FROM invitations WHERE code = ?`, code)

	var inv types.Invitation
	var email sql.NullString
	var expiresAt, usedAt sql.NullString
	var createdAt string
	err := row.Scan(&inv.ID, &inv.Code, &inv.GroupID, &inv.CreatedBy, &email, &inv.Role, &expiresAt, &usedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.Email = email.String
	if inv.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, err
	}
	if inv.UsedAt, err = parseNullTime(usedAt); err != nil {
		return nil, err
	}
	if inv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

// AcceptInvitation marks the invitation used and creates the membership in
// one transaction, guarded by `usedAt IS NULL` so acceptance is idempotent:
// a second call for an already-used invitation affects zero rows and the
// caller can tell acceptance didn't happen via the returned bool.
func (s *Store) AcceptInvitation(code, userID string) (accepted bool, groupID string, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, "", err
	}
	defer tx.Rollback()

	var invID, gID, role string
	err = tx.QueryRow(`SELECT id, group_id, role FROM invitations WHERE code = ? AND used_at IS NULL`, code).
		Scan(&invID, &gID, &role)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}

	res, err := tx.Exec(`UPDATE invitations SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano), invID)
	if err != nil {
		return false, "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, "", err
	}
	if n == 0 {
		return false, "", nil
	}

	if _, err := tx.Exec(`
		INSERT INTO memberships (group_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT(group_id, user_id) DO NOTHING`, gID, userID, role); err != nil {
		return false, "", err
	}

	if err := tx.Commit(); err != nil {
		return false, "", err
	}
	return true, gID, nil
}

// NewInvitationCode generates an opaque, unguessable invitation code.
func NewInvitationCode() string {
	return uuid.NewString()
}

// ListGroupMemberships returns the groups userID belongs to.
func (s *Store) ListGroupMemberships(userID string) ([]types.Membership, error) {
	rows, err := s.db.Query(`SELECT group_id, user_id, role FROM memberships WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Membership
	for rows.Next() {
		var m types.Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IsGroupMember reports whether userID belongs to groupID.
func (s *Store) IsGroupMember(userID, groupID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memberships WHERE group_id = ? AND user_id = ?`, groupID, userID).Scan(&n)
	return n > 0, err
}
