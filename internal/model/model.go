// Package model holds the GORM-tagged persistence structs for the five
// tables this core owns (§3 of SPEC_FULL.md).
package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Event is the identity row for one ticketed event.
type Event struct {
	TEEventID      int64      `gorm:"column:te_event_id;primaryKey"`
	Title          string     `gorm:"column:title;type:varchar(512);not null"`
	StartsAt       *time.Time `gorm:"column:starts_at"`
	EndsAt         *time.Time `gorm:"column:ends_at"`
	EndedAt        *time.Time `gorm:"column:ended_at"`
	PollingEnabled bool       `gorm:"column:polling_enabled;not null;default:true"`
	OltURL         *string    `gorm:"column:olt_url;type:varchar(1024)"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Event) TableName() string { return "events" }

// HourlyPrice is one (event, hour-bucket) aggregate row.
type HourlyPrice struct {
	TEEventID      int64               `gorm:"column:te_event_id;primaryKey;uniqueIndex:uq_event_hour"`
	CapturedAtHour time.Time           `gorm:"column:captured_at_hour;primaryKey;uniqueIndex:uq_event_hour"`
	MinPrice       decimal.NullDecimal `gorm:"column:min_price;type:numeric(12,2)"`
	AvgPrice       decimal.NullDecimal `gorm:"column:avg_price;type:numeric(12,2)"`
	MaxPrice       decimal.NullDecimal `gorm:"column:max_price;type:numeric(12,2)"`
	ListingCount   *int                `gorm:"column:listing_count"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (HourlyPrice) TableName() string { return "event_price_hourly" }

// DailyPrice is one (event, date) rollup row, written by the
// storage-side rollup procedure this core invokes but does not compute.
type DailyPrice struct {
	TEEventID int64               `gorm:"column:te_event_id;primaryKey;uniqueIndex:uq_event_date"`
	Date      time.Time           `gorm:"column:date;primaryKey;uniqueIndex:uq_event_date;type:date"`
	MinPrice  decimal.NullDecimal `gorm:"column:min_price;type:numeric(12,2)"`
	AvgPrice  decimal.NullDecimal `gorm:"column:avg_price;type:numeric(12,2)"`
	MaxPrice  decimal.NullDecimal `gorm:"column:max_price;type:numeric(12,2)"`
	Samples   int                 `gorm:"column:samples;not null;default:0"`
}

func (DailyPrice) TableName() string { return "event_price_daily" }

// RunStatus enumerates PollerRun.status.
type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// PollerRun is the single-writer lock and audit log for one hour bucket.
type PollerRun struct {
	HourBucket      time.Time          `gorm:"column:hour_bucket;primaryKey;uniqueIndex:uq_hour_bucket"`
	Status          RunStatus          `gorm:"column:status;type:varchar(16);not null"`
	BatchSize       int                `gorm:"column:batch_size;not null"`
	EventsTotal     int                `gorm:"column:events_total;not null;default:0"`
	EventsProcessed int                `gorm:"column:events_processed;not null;default:0"`
	EventsSucceeded int                `gorm:"column:events_succeeded;not null;default:0"`
	EventsFailed    int                `gorm:"column:events_failed;not null;default:0"`
	EventsSkipped   int                `gorm:"column:events_skipped;not null;default:0"`
	StartedAt       time.Time          `gorm:"column:started_at;not null"`
	FinishedAt      *time.Time         `gorm:"column:finished_at"`
	ErrorSample     *string            `gorm:"column:error_sample;type:text"`
	Debug           datatypes.JSONMap  `gorm:"column:debug"`
}

func (PollerRun) TableName() string { return "poller_runs" }

// RunEventStatus enumerates PollerRunEvent.status.
type RunEventStatus string

const (
	RunEventSucceeded RunEventStatus = "succeeded"
	RunEventFailed    RunEventStatus = "failed"
	RunEventSkipped   RunEventStatus = "skipped"
)

// PollerRunEvent is the per-(run, event) outcome row.
type PollerRunEvent struct {
	HourBucket   time.Time           `gorm:"column:hour_bucket;primaryKey;uniqueIndex:uq_run_event"`
	TEEventID    int64               `gorm:"column:te_event_id;primaryKey;uniqueIndex:uq_run_event"`
	Status       RunEventStatus      `gorm:"column:status;type:varchar(16);not null"`
	ListingCount *int                `gorm:"column:listing_count"`
	MinPrice     decimal.NullDecimal `gorm:"column:min_price;type:numeric(12,2)"`
	AvgPrice     decimal.NullDecimal `gorm:"column:avg_price;type:numeric(12,2)"`
	MaxPrice     decimal.NullDecimal `gorm:"column:max_price;type:numeric(12,2)"`
	Error        *string             `gorm:"column:error;type:text"`
}

func (PollerRunEvent) TableName() string { return "poller_run_events" }
