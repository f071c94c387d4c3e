// Package repository implements GORM-backed persistence for §3's five
// tables: one repository struct per aggregate, each method a single
// query or an upsert via clause.OnConflict.
package repository

import (
	"context"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository persists the Event table (§3).
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// ActiveEvents returns events eligible for polling per spec §4.6 step 1:
// polling_enabled AND ended_at IS NULL AND (ends_at IS NULL OR ends_at > now).
// Unparseable ends_at can't occur once the column is a typed timestamp,
// so the "fail-open for schema glitches" clause is satisfied by NULL
// already matching the OR's left arm.
func (r *EventRepository) ActiveEvents(ctx context.Context, now time.Time) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("polling_enabled = ?", true).
		Where("ended_at IS NULL").
		Where("ends_at IS NULL OR ends_at > ?", now).
		Find(&events).Error
	return events, err
}

// GetByID fetches one event by its TE id.
func (r *EventRepository) GetByID(ctx context.Context, teEventID int64) (*model.Event, error) {
	var ev model.Event
	err := r.db.WithContext(ctx).Where("te_event_id = ?", teEventID).First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListByIDs fetches a specific subset of events, or all events when ids
// is empty — used by C7's id-selection precedence (spec §4.7).
func (r *EventRepository) ListByIDs(ctx context.Context, ids []int64) ([]model.Event, error) {
	var events []model.Event
	q := r.db.WithContext(ctx)
	if len(ids) > 0 {
		q = q.Where("te_event_id IN ?", ids)
	}
	err := q.Find(&events).Error
	return events, err
}

// Upsert inserts or fully replaces an Event row on the te_event_id key —
// used by the eventctl upsert tool (§10) and the metadata refresher (C7).
func (r *EventRepository) Upsert(ctx context.Context, ev *model.Event) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "te_event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "starts_at", "ends_at", "ended_at", "polling_enabled", "olt_url", "updated_at",
		}),
	}).Create(ev).Error
}

// EndedEventIDs returns te_event_ids satisfying spec §4.8's "ended"
// definition: ended_at IS NOT NULL OR (ended_at IS NULL AND ends_at < now).
func (r *EventRepository) EndedEventIDs(ctx context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("ended_at IS NOT NULL OR (ended_at IS NULL AND ends_at < ?)", now).
		Pluck("te_event_id", &ids).Error
	return ids, err
}
