package types

import "time"

// MembershipRole is a member's privilege level within a Group.
type MembershipRole string

const (
	MembershipOwner  MembershipRole = "owner"
	MembershipAdmin  MembershipRole = "admin"
	MembershipMember MembershipRole = "member"
)

// Group is a shared tenancy container that Users and Roles may belong to.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Membership ties a User to a Group with a privilege level. Unique on
// (GroupID, UserID).
type Membership struct {
	GroupID string         `json:"groupId"`
	UserID  string         `json:"userId"`
	Role    MembershipRole `json:"role"`
}

// Invitation is a single-use code granting membership in a Group.
type Invitation struct {
	ID        string         `json:"id"`
	Code      string         `json:"code"`
	GroupID   string         `json:"groupId"`
	CreatedBy string         `json:"createdBy"`
	Email     string         `json:"email,omitempty"`
	Role      MembershipRole `json:"role"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	UsedAt    *time.Time     `json:"usedAt,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Usable reports whether the invitation can still be accepted.
func (i *Invitation) Usable(now time.Time) bool {
	if i.UsedAt != nil {
		return false
	}
	if i.ExpiresAt != nil && now.After(*i.ExpiresAt) {
		return false
	}
	return true
}
