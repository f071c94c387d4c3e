package repository

import (
	"context"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PriceRepository persists HourlyPrice and DailyPrice (§3).
type PriceRepository struct {
	db *gorm.DB
}

func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// UpsertHourly writes one (te_event_id, captured_at_hour) aggregate row,
// overwriting any prior row for the same key (spec §3 invariant 1).
func (r *PriceRepository) UpsertHourly(ctx context.Context, row *model.HourlyPrice) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "te_event_id"}, {Name: "captured_at_hour"}},
		DoUpdates: clause.AssignmentColumns([]string{"min_price", "avg_price", "max_price", "listing_count"}),
	}).Create(row).Error
}

// LatestHourlyBefore returns the most recent HourlyPrice row for an
// event strictly before the given hour, or nil if none exists — used
// by C6's diagnostic "price unchanged vs previous hour" comparison.
func (r *PriceRepository) LatestHourlyBefore(ctx context.Context, teEventID int64, hour time.Time) (*model.HourlyPrice, error) {
	var row model.HourlyPrice
	err := r.db.WithContext(ctx).
		Where("te_event_id = ? AND captured_at_hour < ?", teEventID, hour).
		Order("captured_at_hour DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteHourlyBefore deletes HourlyPrice rows for the given events with
// captured_at_hour before cutoff, returning the number of rows removed
// (spec §4.8 step 3). Idempotent: a second call with the same cutoff
// over the same event set deletes nothing.
func (r *PriceRepository) DeleteHourlyBefore(ctx context.Context, teEventIDs []int64, cutoff time.Time) (int64, error) {
	if len(teEventIDs) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).
		Where("te_event_id IN ? AND captured_at_hour < ?", teEventIDs, cutoff).
		Delete(&model.HourlyPrice{})
	return tx.RowsAffected, tx.Error
}

// RollupHourlyToDaily invokes the storage-side daily aggregation
// procedure. Its precise rule (mean-of-hourly-means vs. flat mean of
// sampled prices) is an open question per spec §12 confirmed out of
// scope for this core (§1): this method only calls the stored procedure
// and is exercised against a fake in tests, never against real SQL here.
func (r *PriceRepository) RollupHourlyToDaily(ctx context.Context, date time.Time) error {
	return r.db.WithContext(ctx).Exec("SELECT rollup_hourly_to_daily(?)", date).Error
}
