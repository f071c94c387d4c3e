// Package retention implements C8: pruning HourlyPrice rows for ended
// events past a configurable horizon.
package retention

import (
	"context"
	"time"
)

const defaultRetentionDays = 7

// eventLister is the subset of repository.EventRepository this package
// depends on.
type eventLister interface {
	EndedEventIDs(ctx context.Context, now time.Time) ([]int64, error)
}

// hourlyDeleter is the subset of repository.PriceRepository this
// package depends on.
type hourlyDeleter interface {
	DeleteHourlyBefore(ctx context.Context, teEventIDs []int64, cutoff time.Time) (int64, error)
}

// Enforcer prunes stale HourlyPrice rows for events that have ended.
type Enforcer struct {
	events        eventLister
	prices        hourlyDeleter
	retentionDays int
}

// New builds an Enforcer. A negative retentionDays falls back to the
// default of 7; zero is accepted as-is (an explicit "retain nothing").
func New(events eventLister, prices hourlyDeleter, retentionDays int) *Enforcer {
	if retentionDays < 0 {
		retentionDays = defaultRetentionDays
	}
	return &Enforcer{events: events, prices: prices, retentionDays: retentionDays}
}

// Result is the summary spec §4.8 step 4 requires.
type Result struct {
	RetentionDays     int
	Cutoff            time.Time
	EndedEventCount   int
	DeletedHourlyRows int64
}

// Enforce runs the full algorithm in spec §4.8, idempotently: repeating
// with the same now value deletes zero additional rows on the second
// call.
func (e *Enforcer) Enforce(ctx context.Context, now time.Time) (Result, error) {
	cutoff := now.AddDate(0, 0, -e.retentionDays)

	endedIDs, err := e.events.EndedEventIDs(ctx, now)
	if err != nil {
		return Result{}, err
	}

	deleted, err := e.prices.DeleteHourlyBefore(ctx, endedIDs, cutoff)
	if err != nil {
		return Result{}, err
	}

	return Result{
		RetentionDays:     e.retentionDays,
		Cutoff:            cutoff,
		EndedEventCount:   len(endedIDs),
		DeletedHourlyRows: deleted,
	}, nil
}
