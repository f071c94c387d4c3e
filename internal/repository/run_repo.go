package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunRepository persists PollerRun and PollerRunEvent (§3, §4.5).
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// ErrRunExists indicates a PollerRun row already occupies this hour
// bucket — the caller must inspect it to decide already_ran,
// already_running, or reclaim (spec §4.5 step 2).
var ErrRunExists = errors.New("runrepo: run already exists for this hour bucket")

// Acquire inserts a fresh PollerRun row for hourBucket. Returns
// ErrRunExists (not a *gorm.DB error) when a row already occupies the
// bucket, so the coordinator can fall through to its reclaim logic
// without inspecting driver-specific constraint violation codes.
func (r *RunRepository) Acquire(ctx context.Context, run *model.PollerRun) error {
	err := r.db.WithContext(ctx).Create(run).Error
	if err == nil {
		return nil
	}
	var existing model.PollerRun
	lookupErr := r.db.WithContext(ctx).Where("hour_bucket = ?", run.HourBucket).First(&existing).Error
	if lookupErr == nil {
		return ErrRunExists
	}
	return err
}

// GetByHourBucket fetches the PollerRun row for an hour bucket, if any.
func (r *RunRepository) GetByHourBucket(ctx context.Context, hourBucket time.Time) (*model.PollerRun, error) {
	var run model.PollerRun
	err := r.db.WithContext(ctx).Where("hour_bucket = ?", hourBucket).First(&run).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Reclaim overwrites a stale unfinished row in place, marking it
// status=failed with error_sample "stale_lock_timeout" and resetting its
// counters and started_at so a new attempt can proceed under the same
// hour_bucket key (spec §4.5 step 2's stale-lock branch). The WHERE
// clause doubles as the compare-and-swap guard: it only touches a row
// that is still unfinished and still older than staleCutoff, so two
// concurrent reclaimers racing the same stale row can't both win.
// Callers must check the returned row count — exactly 1 means this
// caller reclaimed the lock; 0 means someone else already did (or the
// run finished/restarted) and the caller must re-read.
func (r *RunRepository) Reclaim(ctx context.Context, hourBucket, staleCutoff, startedAt time.Time, batchSize int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.PollerRun{}).
		Where("hour_bucket = ? AND finished_at IS NULL AND started_at < ?", hourBucket, staleCutoff).
		Updates(map[string]interface{}{
			"status":           model.RunFailed,
			"batch_size":       batchSize,
			"events_total":     0,
			"events_processed": 0,
			"events_succeeded": 0,
			"events_failed":    0,
			"events_skipped":   0,
			"started_at":       startedAt,
			"finished_at":      nil,
			"error_sample":     "stale_lock_timeout",
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// UpdateProgress persists the running counters mid-poll so a concurrent
// observer (or a crash) sees partial progress rather than nothing.
func (r *RunRepository) UpdateProgress(ctx context.Context, hourBucket time.Time, processed, succeeded, failed, skipped int) error {
	return r.db.WithContext(ctx).Model(&model.PollerRun{}).
		Where("hour_bucket = ?", hourBucket).
		Updates(map[string]interface{}{
			"events_processed": processed,
			"events_succeeded": succeeded,
			"events_failed":    failed,
			"events_skipped":   skipped,
		}).Error
}

// Finalize writes the terminal status, counters, and debug blob for a
// run (spec §4.5 "Finalization").
func (r *RunRepository) Finalize(ctx context.Context, hourBucket time.Time, status model.RunStatus, finishedAt time.Time, errorSample *string, debug map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.PollerRun{}).
		Where("hour_bucket = ?", hourBucket).
		Updates(map[string]interface{}{
			"status":       status,
			"finished_at":  finishedAt,
			"error_sample": errorSample,
			"debug":        debug,
		}).Error
}

// SetEventsTotal records the size of the active-event set once it is
// known, before the worker pool starts (spec §4.6 step 2).
func (r *RunRepository) SetEventsTotal(ctx context.Context, hourBucket time.Time, total int) error {
	return r.db.WithContext(ctx).Model(&model.PollerRun{}).
		Where("hour_bucket = ?", hourBucket).
		Update("events_total", total).Error
}

// RecordEventOutcome writes one PollerRunEvent row, replacing any prior
// row for the same (hour_bucket, te_event_id) — a single event is
// processed at most once per run, but the write must still tolerate
// retried calls from a crashed-and-resumed worker.
func (r *RunRepository) RecordEventOutcome(ctx context.Context, row *model.PollerRunEvent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "hour_bucket"}, {Name: "te_event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "listing_count", "min_price", "avg_price", "max_price", "error",
		}),
	}).Create(row).Error
}
