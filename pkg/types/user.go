// Package types holds the domain model shared across the server: users,
// sessions, groups, roles, messages, OAuth tokens, MCP server configs,
// skills and scheduled jobs.
package types

import "time"

// AccountType distinguishes an individual user from one backed by a Group.
type AccountType string

const (
	AccountIndividual AccountType = "individual"
	AccountGroup      AccountType = "group"
)

// User is the root tenancy entity. Email is case-folded unique.
type User struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	Name          string      `json:"name,omitempty"`
	AccountType   AccountType `json:"accountType"`
	DiscordUserID string      `json:"discordUserId,omitempty"`
	Locale        string      `json:"locale,omitempty"`
	Timezone      string      `json:"timezone,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Session is an opaque-cookie-backed login session.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the session should be treated as absent.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || now.After(s.ExpiresAt)
}
