package types

import "time"

// Role is a named persona scoped to a User — the tenancy axis for
// conversation history and memory. A Role may optionally belong to a Group.
type Role struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	GroupID      string    `json:"groupId,omitempty"`
	Name         string    `json:"name"`
	JobDesc      string    `json:"jobDesc,omitempty"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DefaultSystemPrompt is used when a Role carries no custom prompt.
const DefaultSystemPrompt = "You are a helpful assistant."
