package store

import (
	"database/sql"
	"time"

	"github.com/pellucid/hearth/pkg/types"
)

// CreateScheduledJob inserts a new job.
func (s *Store) CreateScheduledJob(j *types.ScheduledJob) error {
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Status == "" {
		j.Status = types.JobPending
	}
	_, err := s.exec(`
		INSERT INTO scheduled_jobs (id, user_id, role_id, description, schedule_type, run_at, status, hold_until, run_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		j.ID, j.UserID, j.RoleID, j.Description, j.ScheduleType, nullTime(j.RunAt), j.Status,
		nullTime(j.HoldUntil), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	return err
}

// GetScheduledJob returns a single job by id.
func (s *Store) GetScheduledJob(id string) (*types.ScheduledJob, error) {
	row := s.db.QueryRow(jobSelect+` WHERE id = ?`, id)
	return scanJob(row)
}

// ListScheduledJobs returns all jobs owned by userID.
func (s *Store) ListScheduledJobs(userID string) ([]types.ScheduledJob, error) {
	rows, err := s.db.Query(jobSelect+` WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// GetDueOnceJobs returns pending one-shot jobs whose runAt has arrived.
func (s *Store) GetDueOnceJobs(now time.Time) ([]types.ScheduledJob, error) {
	rows, err := s.db.Query(jobSelect+`
		WHERE schedule_type = ? AND status = ? AND run_at IS NOT NULL AND run_at <= ?`,
		types.ScheduleOnce, types.JobPending, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// GetPendingRecurringJobs returns recurring jobs not currently on hold.
func (s *Store) GetPendingRecurringJobs(now time.Time) ([]types.ScheduledJob, error) {
	rows, err := s.db.Query(jobSelect+`
		WHERE schedule_type = ? AND status != ? AND (hold_until IS NULL OR hold_until <= ?)`,
		types.ScheduleRecurring, types.JobCancelled, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobRows(rows)
}

// ClaimJob transitions a job from pending to running, conditioned on the
// current status still being pending — the compare-and-swap that prevents
// two ticker instances from double-picking the same due job.
func (s *Store) ClaimJob(id string) (bool, error) {
	res, err := s.exec(`
		UPDATE scheduled_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		types.JobRunning, nowStamp(), id, types.JobPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CompleteJob records a successful run. One-shot jobs move to completed;
// recurring jobs return to pending with nextHold as their re-pick guard.
// A job cancelled while it was running keeps the cancelled status.
func (s *Store) CompleteJob(id string, nextHold *time.Time, recurring bool) error {
	status := types.JobCompleted
	if recurring {
		status = types.JobPending
	}
	now := time.Now().UTC()
	_, err := s.exec(`
		UPDATE scheduled_jobs
		SET status = CASE WHEN status = ? THEN status ELSE ? END, last_run_at = ?, last_error = NULL, hold_until = ?, run_count = run_count + 1, updated_at = ?
		WHERE id = ?`,
		types.JobCancelled, status, now.Format(time.RFC3339Nano), nullTime(nextHold), now.Format(time.RFC3339Nano), id)
	return err
}

// FailJob records a failed run. One-shot jobs move to failed; recurring
// jobs return to pending behind a backoff hold so a persistently failing
// job doesn't spin the ticker. A job cancelled while it was running keeps
// the cancelled status.
func (s *Store) FailJob(id, errMsg string, nextHold *time.Time, recurring bool) error {
	status := types.JobFailed
	if recurring {
		status = types.JobPending
	}
	now := time.Now().UTC()
	_, err := s.exec(`
		UPDATE scheduled_jobs
		SET status = CASE WHEN status = ? THEN status ELSE ? END, last_run_at = ?, last_error = ?, hold_until = ?, updated_at = ?
		WHERE id = ?`,
		types.JobCancelled, status, now.Format(time.RFC3339Nano), errMsg, nullTime(nextHold), now.Format(time.RFC3339Nano), id)
	return err
}

// CancelJob marks a job cancelled regardless of its current status.
func (s *Store) CancelJob(id string) error {
	_, err := s.exec(`UPDATE scheduled_jobs SET status = ?, updated_at = ? WHERE id = ?`,
		types.JobCancelled, nowStamp(), id)
	return err
}

const jobSelect = `
	SELECT id, user_id, role_id, description, schedule_type, run_at, status, last_run_at, last_error, hold_until, run_count, created_at, updated_at
	FROM scheduled_jobs`

func scanJob(row *sql.Row) (*types.ScheduledJob, error) {
	var j types.ScheduledJob
	var runAt, lastRunAt, lastError, holdUntil sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&j.ID, &j.UserID, &j.RoleID, &j.Description, &j.ScheduleType, &runAt, &j.Status,
		&lastRunAt, &lastError, &holdUntil, &j.RunCount, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return finishJobScan(&j, runAt, lastRunAt, lastError, holdUntil, createdAt, updatedAt)
}

func scanJobRows(rows *sql.Rows) ([]types.ScheduledJob, error) {
	var out []types.ScheduledJob
	for rows.Next() {
		var j types.ScheduledJob
		var runAt, lastRunAt, lastError, holdUntil sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&j.ID, &j.UserID, &j.RoleID, &j.Description, &j.ScheduleType, &runAt, &j.Status,
			&lastRunAt, &lastError, &holdUntil, &j.RunCount, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		done, err := finishJobScan(&j, runAt, lastRunAt, lastError, holdUntil, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, *done)
	}
	return out, rows.Err()
}

func finishJobScan(j *types.ScheduledJob, runAt, lastRunAt, lastError, holdUntil sql.NullString, createdAt, updatedAt string) (*types.ScheduledJob, error) {
	var err error
	if j.RunAt, err = parseNullTime(runAt); err != nil {
		return nil, err
	}
	if j.LastRunAt, err = parseNullTime(lastRunAt); err != nil {
		return nil, err
	}
	j.LastError = lastError.String
	if j.HoldUntil, err = parseNullTime(holdUntil); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return j, nil
}
