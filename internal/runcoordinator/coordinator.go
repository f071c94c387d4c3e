// Package runcoordinator implements C5: single-writer-per-hour
// acquisition and finalization of a PollerRun row. The initial claim is
// a plain insert relying on a unique constraint over hour_bucket; on
// conflict, the existing row decides the outcome (already ran, still
// running, or stale and reclaimable). The stale-lock reclaim is itself a
// compare-and-swap UPDATE guarded by the same staleness predicate, so
// two callers racing the same stale row can't both win.
package runcoordinator

import (
	"context"
	"errors"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Outcome classifies the result of Acquire.
type Outcome string

const (
	Acquired       Outcome = "acquired"
	AlreadyRan     Outcome = "already_ran"
	AlreadyRunning Outcome = "already_running"
)

// Handle represents a successfully acquired run lock; it must be
// finalized exactly once.
type Handle struct {
	HourBucket time.Time
	RunID      uuid.UUID
	StartedAt  time.Time
	BatchSize  int
}

// runStore is the subset of repository.RunRepository this package
// depends on, narrowed to a local interface so lock-acquisition logic
// is testable against an in-memory fake.
type runStore interface {
	Acquire(ctx context.Context, run *model.PollerRun) error
	GetByHourBucket(ctx context.Context, hourBucket time.Time) (*model.PollerRun, error)
	Reclaim(ctx context.Context, hourBucket, staleCutoff, startedAt time.Time, batchSize int) (int64, error)
	UpdateProgress(ctx context.Context, hourBucket time.Time, processed, succeeded, failed, skipped int) error
	SetEventsTotal(ctx context.Context, hourBucket time.Time, total int) error
	Finalize(ctx context.Context, hourBucket time.Time, status model.RunStatus, finishedAt time.Time, errorSample *string, debug map[string]interface{}) error
}

// Coordinator implements the acquisition/finalization protocol in §4.5.
type Coordinator struct {
	runs               runStore
	staleLockThreshold time.Duration
	logger             *logrus.Logger
}

func New(runs *repository.RunRepository, staleLockMinutes int, logger *logrus.Logger) *Coordinator {
	if staleLockMinutes <= 0 {
		staleLockMinutes = 15
	}
	return &Coordinator{
		runs:               runs,
		staleLockThreshold: time.Duration(staleLockMinutes) * time.Minute,
		logger:             logger,
	}
}

// Acquire attempts to claim the run lock for hourBucket, per spec §4.5
// step 1-3. A non-nil Handle is only returned alongside Acquired.
func (c *Coordinator) Acquire(ctx context.Context, hourBucket time.Time, now time.Time, batchSize int) (Outcome, *Handle, error) {
	run := &model.PollerRun{
		HourBucket: hourBucket,
		Status:     model.RunStarted,
		BatchSize:  batchSize,
		StartedAt:  now,
	}

	err := c.runs.Acquire(ctx, run)
	if err == nil {
		return Acquired, &Handle{HourBucket: hourBucket, RunID: uuid.New(), StartedAt: now, BatchSize: batchSize}, nil
	}
	if !errors.Is(err, repository.ErrRunExists) {
		return "", nil, err
	}

	existing, err := c.runs.GetByHourBucket(ctx, hourBucket)
	if err != nil {
		return "", nil, err
	}
	if existing == nil {
		return "", nil, errors.New("runcoordinator: run reported existing but lookup found none")
	}
	if existing.FinishedAt != nil {
		return AlreadyRan, nil, nil
	}

	staleCutoff := now.Add(-c.staleLockThreshold)
	if existing.StartedAt.Before(staleCutoff) {
		c.logger.WithFields(logrus.Fields{
			"hour_bucket": hourBucket,
			"started_at":  existing.StartedAt,
		}).Warn("reclaiming stale poller run lock")

		rows, err := c.runs.Reclaim(ctx, hourBucket, staleCutoff, now, batchSize)
		if err != nil {
			return "", nil, err
		}
		if rows != 1 {
			// Another caller already reclaimed (or finished) this row
			// between our read and our update — lost the race, not an error.
			return AlreadyRunning, nil, nil
		}
		return Acquired, &Handle{HourBucket: hourBucket, RunID: uuid.New(), StartedAt: now, BatchSize: batchSize}, nil
	}

	return AlreadyRunning, nil, nil
}

// FinalizeInput carries the outcome of a poller invocation to be
// persisted on the PollerRun row.
type FinalizeInput struct {
	Status           model.RunStatus
	FinishedAt       time.Time
	EventsTotal      int
	EventsProcessed  int
	EventsSucceeded  int
	EventsFailed     int
	EventsSkipped    int
	BatchCount       int
	ErrorSample      *string
	DurationMS       int64
	RetentionSummary map[string]interface{}
}

// Finalize writes the terminal state for a run (spec §4.5 "Finalization"),
// assembling the debug blob from the run's trace id plus caller-supplied
// diagnostics.
func (c *Coordinator) Finalize(ctx context.Context, h *Handle, in FinalizeInput) error {
	debug := map[string]interface{}{
		"run_id":        h.RunID.String(),
		"duration_ms":   in.DurationMS,
		"batch_size":    h.BatchSize,
		"batch_count":   in.BatchCount,
		"skipped_count": in.EventsSkipped,
	}
	if in.RetentionSummary != nil {
		debug["retention"] = in.RetentionSummary
	}

	if err := c.runs.UpdateProgress(ctx, h.HourBucket, in.EventsProcessed, in.EventsSucceeded, in.EventsFailed, in.EventsSkipped); err != nil {
		return err
	}
	if err := c.runs.SetEventsTotal(ctx, h.HourBucket, in.EventsTotal); err != nil {
		return err
	}
	return c.runs.Finalize(ctx, h.HourBucket, in.Status, in.FinishedAt, in.ErrorSample, debug)
}

// TruncateToHourUTC returns the start of now's containing hour in UTC,
// the key used for the PollerRun row (spec §4.5).
func TruncateToHourUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), 0, 0, 0, time.UTC)
}
