// Package poller implements C6: the bounded-concurrency per-event
// polling pass that turns a batch of active events into HourlyPrice
// rows. The active-event set is sliced into BATCH_SIZE-sized chunks;
// each chunk runs one goroutine per event and the chunks themselves run
// sequentially, which bounds concurrency without a separate semaphore.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/aggregator"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/repository"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/retention"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/teclient"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func decimalPtr(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// errNoEligibleListings is the per-event skip reason spec §4.6 step 5
// requires when a listing fetch succeeds but nothing survives the
// aggregator's eligibility filters.
var errNoEligibleListings = errors.New("no_eligible_listings")

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// activeEventLister is the subset of repository.EventRepository the
// engine depends on.
type activeEventLister interface {
	ActiveEvents(ctx context.Context, now time.Time) ([]model.Event, error)
}

// hourlyStore is the subset of repository.PriceRepository the engine
// depends on.
type hourlyStore interface {
	UpsertHourly(ctx context.Context, row *model.HourlyPrice) error
	LatestHourlyBefore(ctx context.Context, teEventID int64, hour time.Time) (*model.HourlyPrice, error)
}

// runStore is the subset of repository.RunRepository the engine depends
// on.
type runStore interface {
	SetEventsTotal(ctx context.Context, hourBucket time.Time, total int) error
	UpdateProgress(ctx context.Context, hourBucket time.Time, processed, succeeded, failed, skipped int) error
	RecordEventOutcome(ctx context.Context, row *model.PollerRunEvent) error
}

// retentionEnforcer is the subset of retention.Enforcer the engine
// depends on.
type retentionEnforcer interface {
	Enforce(ctx context.Context, now time.Time) (retention.Result, error)
}

// Engine runs one poller invocation over the active-event set.
type Engine struct {
	events    activeEventLister
	prices    hourlyStore
	runs      runStore
	client    eventLister
	retention retentionEnforcer
	batchSize int
	logger    *logrus.Logger
	now       Clock
}

// eventLister is the subset of teclient.Client the engine depends on —
// narrowed to a local interface so engine tests can fake TE responses
// without a live HTTP server.
type eventLister interface {
	Listings(ctx context.Context, teEventID int64) ([]teclient.Listing, error)
}

func New(events *repository.EventRepository, prices *repository.PriceRepository, runs *repository.RunRepository, client eventLister, enforcer *retention.Enforcer, batchSize int, logger *logrus.Logger, now Clock) *Engine {
	if batchSize <= 0 {
		batchSize = 10
	}
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		events:    events,
		prices:    prices,
		runs:      runs,
		client:    client,
		batchSize: batchSize,
		logger:    logger,
		now:       now,
	}
	if enforcer != nil {
		e.retention = enforcer
	}
	return e
}

// Summary aggregates the outcome of a poller invocation (spec §4.6
// step 6's counters).
type Summary struct {
	EventsTotal      int
	EventsProcessed  int
	EventsSucceeded  int
	EventsFailed     int
	EventsSkipped    int
	BatchCount       int
	Status           model.RunStatus
	FirstError       *string
	RetentionSummary map[string]interface{}
}

type eventOutcome struct {
	teEventID int64
	status    model.RunEventStatus
	result    aggregator.Result
	err       error
}

// Run executes spec §4.6 steps 1-6 for hourBucket and writes all
// per-event and HourlyPrice rows. hourBucket must already be truncated
// to the UTC hour.
func (e *Engine) Run(ctx context.Context, hourBucket time.Time) (Summary, error) {
	now := e.now()

	active, err := e.events.ActiveEvents(ctx, now)
	if err != nil {
		return Summary{}, err
	}

	if err := e.runs.SetEventsTotal(ctx, hourBucket, len(active)); err != nil {
		return Summary{}, err
	}

	var retentionSummary map[string]interface{}
	if e.retention != nil {
		result, rerr := e.retention.Enforce(ctx, now)
		if rerr != nil {
			e.logger.WithError(rerr).Warn("poller: retention enforcement failed, continuing")
		} else {
			retentionSummary = map[string]interface{}{
				"retention_days":      result.RetentionDays,
				"cutoff":              result.Cutoff,
				"ended_event_count":   result.EndedEventCount,
				"deleted_hourly_rows": result.DeletedHourlyRows,
			}
		}
	}

	summary := Summary{EventsTotal: len(active), RetentionSummary: retentionSummary}

	for start := 0; start < len(active); start += e.batchSize {
		end := start + e.batchSize
		if end > len(active) {
			end = len(active)
		}
		batch := active[start:end]
		summary.BatchCount++

		outcomes := e.runBatch(ctx, batch, hourBucket, now)
		for _, o := range outcomes {
			summary.EventsProcessed++
			switch o.status {
			case model.RunEventSucceeded:
				summary.EventsSucceeded++
			case model.RunEventSkipped:
				summary.EventsSkipped++
			case model.RunEventFailed:
				summary.EventsFailed++
				if summary.FirstError == nil && o.err != nil {
					msg := o.err.Error()
					summary.FirstError = &msg
				}
			}
		}

		if err := e.runs.UpdateProgress(ctx, hourBucket, summary.EventsProcessed, summary.EventsSucceeded, summary.EventsFailed, summary.EventsSkipped); err != nil {
			return summary, err
		}
	}

	switch {
	case summary.EventsFailed == 0:
		summary.Status = model.RunSucceeded
	case summary.EventsSucceeded > 0:
		summary.Status = model.RunPartial
	default:
		summary.Status = model.RunFailed
	}

	return summary, nil
}

// runBatch processes one batch of events concurrently, bounded only by
// the batch's own size — between-batch sequencing is the caller's
// responsibility.
func (e *Engine) runBatch(ctx context.Context, batch []model.Event, hourBucket time.Time, now time.Time) []eventOutcome {
	outcomes := make([]eventOutcome, len(batch))
	var wg sync.WaitGroup
	for i, ev := range batch {
		wg.Add(1)
		go func(i int, ev model.Event) {
			defer wg.Done()
			outcomes[i] = e.processEvent(ctx, ev, hourBucket, now)
		}(i, ev)
	}
	wg.Wait()

	for _, o := range outcomes {
		if err := e.writeOutcome(ctx, hourBucket, o); err != nil {
			e.logger.WithError(err).WithField("te_event_id", o.teEventID).Error("poller: failed to record run-event outcome")
		}
	}
	return outcomes
}

// processEvent implements spec §4.6 step 5 for one event.
func (e *Engine) processEvent(ctx context.Context, ev model.Event, hourBucket time.Time, now time.Time) eventOutcome {
	listings, err := e.client.Listings(ctx, ev.TEEventID)
	if err != nil {
		return eventOutcome{teEventID: ev.TEEventID, status: model.RunEventFailed, err: err}
	}

	result := aggregator.Aggregate(listings)

	e.warnIfPriceUnchanged(ctx, ev.TEEventID, hourBucket, result)

	row := &model.HourlyPrice{
		TEEventID:      ev.TEEventID,
		CapturedAtHour: hourBucket,
	}
	status := model.RunEventSucceeded
	var outcomeErr error
	if !result.HasAggregate {
		status = model.RunEventSkipped
		outcomeErr = errNoEligibleListings
		zero := 0
		row.ListingCount = &zero
	} else {
		row.MinPrice = decimalPtr(result.Min)
		row.AvgPrice = decimalPtr(result.Avg)
		row.MaxPrice = decimalPtr(result.Max)
		count := result.ListingCount
		row.ListingCount = &count
	}

	if err := e.prices.UpsertHourly(ctx, row); err != nil {
		return eventOutcome{teEventID: ev.TEEventID, status: model.RunEventFailed, err: err}
	}

	return eventOutcome{teEventID: ev.TEEventID, status: status, result: result, err: outcomeErr}
}

// warnIfPriceUnchanged implements the non-fatal diagnostic comparison
// against the previous hour's aggregate (spec §4.6 step 5, §9, §12).
func (e *Engine) warnIfPriceUnchanged(ctx context.Context, teEventID int64, hourBucket time.Time, result aggregator.Result) {
	if !result.HasAggregate {
		return
	}
	prior, err := e.prices.LatestHourlyBefore(ctx, teEventID, hourBucket)
	if err != nil || prior == nil || !prior.MinPrice.Valid {
		return
	}
	if prior.CapturedAtHour.Equal(hourBucket) {
		return
	}
	if prior.MinPrice.Decimal.Equal(result.Min) {
		e.logger.WithFields(logrus.Fields{
			"te_event_id": teEventID,
			"hour_bucket": hourBucket,
			"min_price":   result.Min.String(),
		}).Warn("poller: min price unchanged from previous hour")
	}
}

func (e *Engine) writeOutcome(ctx context.Context, hourBucket time.Time, o eventOutcome) error {
	row := &model.PollerRunEvent{
		HourBucket: hourBucket,
		TEEventID:  o.teEventID,
		Status:     o.status,
	}
	if o.err != nil {
		msg := o.err.Error()
		row.Error = &msg
	}
	if o.result.HasAggregate {
		row.MinPrice = decimalPtr(o.result.Min)
		row.AvgPrice = decimalPtr(o.result.Avg)
		row.MaxPrice = decimalPtr(o.result.Max)
		count := o.result.ListingCount
		row.ListingCount = &count
	}
	return e.runs.RecordEventOutcome(ctx, row)
}
