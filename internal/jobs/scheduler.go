// Package jobs implements the scheduled jobs runner (C8): a single ticker
// loop that picks up due jobs, re-enters the turn orchestrator headlessly,
// and records the outcome — grounded on nexus's internal/tasks.Scheduler
// (ticker-driven poll loop, a semaphore-bounded sync.WaitGroup for
// concurrent executions, graceful Stop) and internal/cron for cadence
// parsing, simplified from nexus's two-phase poll/acquire/execution-lock
// model to spec.md §4.8's single poll-claim-execute tick, since this
// domain's jobs are headless turns rather than nexus's generic HTTP-
// calling tasks with their own distributed-lock table.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pellucid/hearth/internal/logging"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/internal/turn"
	"github.com/pellucid/hearth/pkg/types"
)

// TurnRunner is the subset of *turn.Orchestrator the scheduler needs —
// narrowed to an interface so tests can substitute a stub without
// constructing a full Orchestrator dependency graph.
type TurnRunner interface {
	RunHeadless(ctx context.Context, req turn.Request) (*turn.Result, error)
}

// MaxExecutionTime is the hard per-job-execution ceiling (spec.md §5).
const MaxExecutionTime = 15 * time.Minute

// Config tunes the scheduler's poll cadence and concurrency.
type Config struct {
	PollInterval   time.Duration
	MaxConcurrency int
}

// DefaultConfig mirrors spec.md §4.8's "every tick (default 30s)".
func DefaultConfig() Config {
	return Config{PollInterval: 30 * time.Second, MaxConcurrency: 5}
}

// Scheduler runs the C8 tick loop against a Store and a TurnRunner.
type Scheduler struct {
	store  *store.Store
	runner TurnRunner
	cfg    Config

	sem    chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

func New(st *store.Store, runner TurnRunner, cfg Config) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	return &Scheduler{store: st, runner: runner, cfg: cfg, sem: make(chan struct{}, cfg.MaxConcurrency)}
}

// Start begins the poll loop as a background goroutine. Calling Start
// twice without an intervening Stop is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.pollLoop(ctx)
}

// Stop cancels the poll loop and waits for in-flight executions to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Cancel transitions a job to cancelled; a running execution finishes and
// observes the cancellation only at the next tick's claim guard, per
// spec.md §4.8.
func (s *Scheduler) Cancel(id string) error {
	return s.store.CancelJob(id)
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick implements spec.md §4.8 steps 1-2: query due work, then claim and
// dispatch each job. A job that fails ClaimJob's compare-and-swap (already
// picked up by a concurrent tick or instance) is silently skipped.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	tickID := ulid.Make().String()

	once, err := s.store.GetDueOnceJobs(now)
	if err != nil {
		logging.Logger.Error().Err(err).Str("tickId", tickID).Msg("jobs: querying due once jobs")
		return
	}
	recurring, err := s.store.GetPendingRecurringJobs(now)
	if err != nil {
		logging.Logger.Error().Err(err).Str("tickId", tickID).Msg("jobs: querying pending recurring jobs")
		return
	}

	due := append(once, recurring...)
	for i := range due {
		job := due[i]
		claimed, err := s.store.ClaimJob(job.ID)
		if err != nil {
			logging.Logger.Error().Err(err).Str("tickId", tickID).Str("jobId", job.ID).Msg("jobs: claiming job")
			continue
		}
		if !claimed {
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		s.wg.Add(1)
		go func(j types.ScheduledJob) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.execute(ctx, j)
		}(job)
	}
}

// execute runs one claimed job to completion, per spec.md §4.8 steps 3-5.
func (s *Scheduler) execute(ctx context.Context, job types.ScheduledJob) {
	ctx, cancel := context.WithTimeout(ctx, MaxExecutionTime)
	defer cancel()

	recurring := job.ScheduleType == types.ScheduleRecurring

	prompt := job.Description
	if recurring {
		prompt = stripCadence(job.Description)
	}

	result, err := s.runner.RunHeadless(ctx, turn.Request{
		UserID: job.UserID,
		RoleID: job.RoleID,
		Messages: []types.Message{{
			Role: types.RoleUser, Content: prompt,
		}},
	})

	if err != nil {
		s.fail(job, recurring, err.Error())
		return
	}
	_ = result

	if !recurring {
		if err := s.store.CompleteJob(job.ID, nil, false); err != nil {
			logging.Logger.Error().Err(err).Str("jobId", job.ID).Msg("jobs: completing once job")
		}
		return
	}

	sched, cadenceErr := parseCadence(job.Description)
	if cadenceErr != nil {
		// A recurring job whose cadence fails to parse transitions to
		// failed rather than looping forever on an unparseable schedule
		// (spec.md §8 boundary behavior).
		s.fail(job, false, cadenceErr.Error())
		return
	}
	next := sched.Next(time.Now().UTC())
	if err := s.store.CompleteJob(job.ID, &next, true); err != nil {
		logging.Logger.Error().Err(err).Str("jobId", job.ID).Msg("jobs: completing recurring job")
	}
}

// fail records lastError and, for recurring jobs, schedules a backoff
// retry hold instead of transitioning to failed outright.
func (s *Scheduler) fail(job types.ScheduledJob, recurring bool, detail string) {
	var hold *time.Time
	if recurring {
		h := time.Now().UTC().Add(backoffHold(job.RunCount))
		hold = &h
	}
	if err := s.store.FailJob(job.ID, detail, hold, recurring); err != nil {
		logging.Logger.Error().Err(err).Str("jobId", job.ID).Msg("jobs: recording job failure")
	}
}

// backoffHold computes an exponential backoff capped at 1 hour, keyed off
// how many times the job has already completed/retried.
func backoffHold(runCount int) time.Duration {
	d := time.Minute
	for i := 0; i < runCount && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
