package types

import "time"

// MessageRole identifies the speaker of a Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one turn's worth of conversation content, scoped to a Role.
// Order within a Role is by CreatedAt ascending; ties break on ID. Insertion
// is idempotent on ID.
type Message struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	RoleID    string      `json:"roleId"`
	GroupID   string      `json:"groupId,omitempty"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}
