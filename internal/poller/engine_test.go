package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/teclient"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActiveEvents struct {
	events []model.Event
}

func (f *fakeActiveEvents) ActiveEvents(ctx context.Context, now time.Time) ([]model.Event, error) {
	return f.events, nil
}

type fakeHourlyStore struct {
	upserted []model.HourlyPrice
}

func (f *fakeHourlyStore) UpsertHourly(ctx context.Context, row *model.HourlyPrice) error {
	f.upserted = append(f.upserted, *row)
	return nil
}

func (f *fakeHourlyStore) LatestHourlyBefore(ctx context.Context, teEventID int64, hour time.Time) (*model.HourlyPrice, error) {
	return nil, nil
}

type fakeRunStore struct {
	outcomes []model.PollerRunEvent
}

func (f *fakeRunStore) SetEventsTotal(ctx context.Context, hourBucket time.Time, total int) error {
	return nil
}

func (f *fakeRunStore) UpdateProgress(ctx context.Context, hourBucket time.Time, processed, succeeded, failed, skipped int) error {
	return nil
}

func (f *fakeRunStore) RecordEventOutcome(ctx context.Context, row *model.PollerRunEvent) error {
	f.outcomes = append(f.outcomes, *row)
	return nil
}

type fakeTEClient struct {
	byEvent map[int64][]teclient.Listing
	errByEvent map[int64]error
}

func (f *fakeTEClient) Listings(ctx context.Context, teEventID int64) ([]teclient.Listing, error) {
	if err, ok := f.errByEvent[teEventID]; ok {
		return nil, err
	}
	return f.byEvent[teEventID], nil
}

func eligibleListing(price, qty string) teclient.Listing {
	return teclient.Listing{Type: "event", RetailPrice: teclient.StrNum(price), AvailableQuantity: teclient.StrNum(qty), Splits: []int{2}}
}

func TestRun_AllEventsSucceed(t *testing.T) {
	events := &fakeActiveEvents{events: []model.Event{{TEEventID: 1}, {TEEventID: 2}}}
	prices := &fakeHourlyStore{}
	runs := &fakeRunStore{}
	client := &fakeTEClient{byEvent: map[int64][]teclient.Listing{
		1: {eligibleListing("100", "2")},
		2: {eligibleListing("50", "2")},
	}}

	e := &Engine{events: events, prices: prices, runs: runs, client: client, batchSize: 10, logger: logrus.New(), now: time.Now}
	summary, err := e.Run(context.Background(), time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, model.RunSucceeded, summary.Status)
	assert.Equal(t, 2, summary.EventsSucceeded)
	assert.Equal(t, 0, summary.EventsFailed)
	assert.Len(t, prices.upserted, 2)
}

func TestRun_NoEligibleListingsSkipsEvent(t *testing.T) {
	events := &fakeActiveEvents{events: []model.Event{{TEEventID: 1}}}
	prices := &fakeHourlyStore{}
	runs := &fakeRunStore{}
	client := &fakeTEClient{byEvent: map[int64][]teclient.Listing{1: {{Type: "parking"}}}}

	e := &Engine{events: events, prices: prices, runs: runs, client: client, batchSize: 10, logger: logrus.New(), now: time.Now}
	summary, err := e.Run(context.Background(), time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, model.RunSucceeded, summary.Status)
	assert.Equal(t, 1, summary.EventsSkipped)
	require.Len(t, runs.outcomes, 1)
	assert.Equal(t, model.RunEventSkipped, runs.outcomes[0].Status)
	require.NotNil(t, runs.outcomes[0].Error)
	assert.Equal(t, "no_eligible_listings", *runs.outcomes[0].Error)
}

func TestRun_ClientErrorMarksEventFailed(t *testing.T) {
	events := &fakeActiveEvents{events: []model.Event{{TEEventID: 1}, {TEEventID: 2}}}
	prices := &fakeHourlyStore{}
	runs := &fakeRunStore{}
	client := &fakeTEClient{
		byEvent:    map[int64][]teclient.Listing{2: {eligibleListing("100", "2")}},
		errByEvent: map[int64]error{1: errors.New("boom")},
	}

	e := &Engine{events: events, prices: prices, runs: runs, client: client, batchSize: 10, logger: logrus.New(), now: time.Now}
	summary, err := e.Run(context.Background(), time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, model.RunPartial, summary.Status)
	assert.Equal(t, 1, summary.EventsSucceeded)
	assert.Equal(t, 1, summary.EventsFailed)
	require.NotNil(t, summary.FirstError)
}

func TestRun_AllEventsFailedClassifiesAsFailed(t *testing.T) {
	events := &fakeActiveEvents{events: []model.Event{{TEEventID: 1}}}
	prices := &fakeHourlyStore{}
	runs := &fakeRunStore{}
	client := &fakeTEClient{errByEvent: map[int64]error{1: errors.New("boom")}}

	e := &Engine{events: events, prices: prices, runs: runs, client: client, batchSize: 10, logger: logrus.New(), now: time.Now}
	summary, err := e.Run(context.Background(), time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, model.RunFailed, summary.Status)
	assert.Equal(t, 0, summary.EventsSucceeded)
	assert.Equal(t, 1, summary.EventsFailed)
}

func TestRun_BatchesRespectBatchSize(t *testing.T) {
	var events []model.Event
	byEvent := map[int64][]teclient.Listing{}
	for i := int64(1); i <= 25; i++ {
		events = append(events, model.Event{TEEventID: i})
		byEvent[i] = []teclient.Listing{eligibleListing("10", "2")}
	}
	e := &Engine{
		events: &fakeActiveEvents{events: events},
		prices: &fakeHourlyStore{},
		runs:   &fakeRunStore{},
		client: &fakeTEClient{byEvent: byEvent},
		batchSize: 10,
		logger: logrus.New(),
		now:    time.Now,
	}
	summary, err := e.Run(context.Background(), time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 25, summary.EventsTotal)
	assert.Equal(t, 25, summary.EventsProcessed)
	assert.Equal(t, 25, summary.EventsSucceeded)
	assert.Equal(t, 3, summary.BatchCount)
}
