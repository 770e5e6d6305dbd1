package types

import "time"

// InsightSource distinguishes a model-extracted insight from one the user
// typed directly via saveToMemory.
type InsightSource string

const (
	InsightSourceExtract InsightSource = "extract"
	InsightSourceManual  InsightSource = "manual"
)

// Insight is one atomic fact in a Role's memory, deduped by ContentHash —
// the SHA-256 of its normalized Text.
type Insight struct {
	ID          string        `json:"id"`
	RoleID      string        `json:"roleId"`
	ContentHash string        `json:"-"`
	Text        string        `json:"text"`
	Source      InsightSource `json:"source"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
