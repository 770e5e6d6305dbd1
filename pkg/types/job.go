package types

import "time"

// ScheduleType distinguishes a one-shot job from a recurring one.
type ScheduleType string

const (
	ScheduleOnce      ScheduleType = "once"
	ScheduleRecurring ScheduleType = "recurring"
)

// JobStatus is the lifecycle state of a ScheduledJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// ScheduledJob re-enters the turn orchestrator with a synthesized prompt
// at a declared time or cadence. Recurring jobs carry their cadence inside
// Description as a trailing "cron(<expr>)" token; HoldUntil is the
// "do not re-pick before" guard used to prevent a tight re-pick loop.
type ScheduledJob struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	RoleID       string       `json:"roleId"`
	Description  string       `json:"description"`
	ScheduleType ScheduleType `json:"scheduleType"`
	RunAt        *time.Time   `json:"runAt,omitempty"`
	Status       JobStatus    `json:"status"`
	LastRunAt    *time.Time   `json:"lastRunAt,omitempty"`
	LastError    string       `json:"lastError,omitempty"`
	HoldUntil    *time.Time   `json:"holdUntil,omitempty"`
	RunCount     int          `json:"runCount"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}
