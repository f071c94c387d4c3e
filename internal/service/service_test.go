package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/metadata"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/poller"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/retention"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/runcoordinator"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	outcome      runcoordinator.Outcome
	acquireErr   error
	finalizeErr  error
	finalizedIn  runcoordinator.FinalizeInput
	finalizeCall int
}

func (f *fakeCoordinator) Acquire(ctx context.Context, hourBucket, now time.Time, batchSize int) (runcoordinator.Outcome, *runcoordinator.Handle, error) {
	if f.acquireErr != nil {
		return "", nil, f.acquireErr
	}
	if f.outcome == "" {
		f.outcome = runcoordinator.Acquired
	}
	if f.outcome != runcoordinator.Acquired {
		return f.outcome, nil, nil
	}
	return runcoordinator.Acquired, &runcoordinator.Handle{HourBucket: hourBucket, StartedAt: now, BatchSize: batchSize}, nil
}

func (f *fakeCoordinator) Finalize(ctx context.Context, h *runcoordinator.Handle, in runcoordinator.FinalizeInput) error {
	f.finalizeCall++
	f.finalizedIn = in
	return f.finalizeErr
}

type fakeEngine struct {
	summary poller.Summary
	err     error
}

func (f *fakeEngine) Run(ctx context.Context, hourBucket time.Time) (poller.Summary, error) {
	return f.summary, f.err
}

type fakeRefresher struct {
	summary metadata.Summary
	err     error
}

func (f *fakeRefresher) Refresh(ctx context.Context, ids []int64, dryRun bool) (metadata.Summary, error) {
	return f.summary, f.err
}

type fakeRetention struct {
	result retention.Result
	err    error
}

func (f *fakeRetention) Enforce(ctx context.Context, now time.Time) (retention.Result, error) {
	return f.result, f.err
}

type fakeDailyRoller struct {
	err error
}

func (f *fakeDailyRoller) RollupHourlyToDaily(ctx context.Context, date time.Time) error {
	return f.err
}

func fixedNow() time.Time {
	return time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
}

func TestRunHourly_SkipsWhenCoordinatorReportsAlreadyRunning(t *testing.T) {
	coord := &fakeCoordinator{outcome: runcoordinator.AlreadyRunning}
	svc := &Service{coordinator: coord, engine: &fakeEngine{}, batchSize: 10, logger: logrus.New(), now: fixedNow}

	result, err := svc.RunHourly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "skipped", result.Status)
	assert.Equal(t, string(runcoordinator.AlreadyRunning), result.Reason)
	assert.Equal(t, 0, coord.finalizeCall)
}

func TestRunHourly_RunsEngineAndFinalizesOnAcquire(t *testing.T) {
	coord := &fakeCoordinator{}
	engine := &fakeEngine{summary: poller.Summary{
		Status: model.RunSucceeded, EventsTotal: 3, EventsSucceeded: 3,
	}}
	svc := &Service{coordinator: coord, engine: engine, batchSize: 10, logger: logrus.New(), now: fixedNow}

	result, err := svc.RunHourly(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(model.RunSucceeded), result.Status)
	assert.Equal(t, 3, result.EventsSucceeded)
	assert.Equal(t, 1, coord.finalizeCall)
	assert.Equal(t, model.RunSucceeded, coord.finalizedIn.Status)
}

func TestRunHourly_FinalizesAsFailedWhenEngineErrors(t *testing.T) {
	coord := &fakeCoordinator{}
	engine := &fakeEngine{err: errors.New("boom")}
	svc := &Service{coordinator: coord, engine: engine, batchSize: 10, logger: logrus.New(), now: fixedNow}

	_, err := svc.RunHourly(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, coord.finalizeCall)
	assert.Equal(t, model.RunFailed, coord.finalizedIn.Status)
	require.NotNil(t, coord.finalizedIn.ErrorSample)
	assert.Equal(t, "boom", *coord.finalizedIn.ErrorSample)
}

func TestRunDaily_RollsUpThenEnforcesRetention(t *testing.T) {
	roller := &fakeDailyRoller{}
	enforcer := &fakeRetention{result: retention.Result{RetentionDays: 7, EndedEventCount: 2, DeletedHourlyRows: 40}}
	svc := &Service{prices: roller, retention: enforcer, logger: logrus.New(), now: fixedNow}

	result, err := svc.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, result.RetentionDays)
	assert.Equal(t, 2, result.EndedEventCount)
	assert.EqualValues(t, 40, result.DeletedHourlyRows)
}

func TestRunDaily_StopsBeforeRetentionWhenRollupFails(t *testing.T) {
	roller := &fakeDailyRoller{err: errors.New("rollup failed")}
	enforcer := &fakeRetention{}
	svc := &Service{prices: roller, retention: enforcer, logger: logrus.New(), now: fixedNow}

	_, err := svc.RunDaily(context.Background())
	require.Error(t, err)
}

func TestRefreshMetadata_DelegatesToRefresher(t *testing.T) {
	refresher := &fakeRefresher{summary: metadata.Summary{Updated: 1, Unchanged: 2}}
	svc := &Service{refresher: refresher, logger: logrus.New(), now: fixedNow}

	summary, err := svc.RefreshMetadata(context.Background(), []int64{1}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 2, summary.Unchanged)
}
