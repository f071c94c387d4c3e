// Package service wires C5-C8 together into the three operations C9
// exposes, giving the HTTP handlers and the scheduler a single call to
// make per operation.
package service

import (
	"context"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/metadata"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/poller"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/repository"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/retention"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/runcoordinator"

	"github.com/sirupsen/logrus"
)

// runAcquirer is the subset of runcoordinator.Coordinator this package
// depends on, narrowed to a local interface for fakeability in tests.
type runAcquirer interface {
	Acquire(ctx context.Context, hourBucket, now time.Time, batchSize int) (runcoordinator.Outcome, *runcoordinator.Handle, error)
	Finalize(ctx context.Context, h *runcoordinator.Handle, in runcoordinator.FinalizeInput) error
}

// pollEngine is the subset of poller.Engine this package depends on.
type pollEngine interface {
	Run(ctx context.Context, hourBucket time.Time) (poller.Summary, error)
}

// metadataRefresher is the subset of metadata.Refresher this package
// depends on.
type metadataRefresher interface {
	Refresh(ctx context.Context, ids []int64, dryRun bool) (metadata.Summary, error)
}

// retentionEnforcer is the subset of retention.Enforcer this package
// depends on.
type retentionEnforcer interface {
	Enforce(ctx context.Context, now time.Time) (retention.Result, error)
}

// dailyRoller is the subset of repository.PriceRepository this package
// depends on.
type dailyRoller interface {
	RollupHourlyToDaily(ctx context.Context, date time.Time) error
}

// Service is the orchestration layer behind C9's three entry points.
type Service struct {
	coordinator runAcquirer
	engine      pollEngine
	refresher   metadataRefresher
	retention   retentionEnforcer
	prices      dailyRoller
	batchSize   int
	logger      *logrus.Logger
	now         func() time.Time
}

func New(coordinator *runcoordinator.Coordinator, engine *poller.Engine, refresher *metadata.Refresher, enforcer *retention.Enforcer, prices *repository.PriceRepository, batchSize int, logger *logrus.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		coordinator: coordinator,
		engine:      engine,
		refresher:   refresher,
		retention:   enforcer,
		prices:      prices,
		batchSize:   batchSize,
		logger:      logger,
		now:         now,
	}
}

// HourlyResult is the response C9's hourly entry point returns.
type HourlyResult struct {
	Status          string
	Reason          string
	HourBucket      time.Time
	EventsTotal     int
	EventsSucceeded int
	EventsFailed    int
	EventsSkipped   int
	TotalDurationMS int64
}

// RunHourly implements spec §4.9's hourly entry point: C5 acquisition,
// then C6 if acquired.
func (s *Service) RunHourly(ctx context.Context) (HourlyResult, error) {
	now := s.now()
	hourBucket := runcoordinator.TruncateToHourUTC(now)

	outcome, handle, err := s.coordinator.Acquire(ctx, hourBucket, now, s.batchSize)
	if err != nil {
		return HourlyResult{}, err
	}
	if outcome != runcoordinator.Acquired {
		return HourlyResult{Status: "skipped", Reason: string(outcome), HourBucket: hourBucket}, nil
	}

	start := now
	summary, err := s.engine.Run(ctx, hourBucket)
	duration := s.now().Sub(start)

	if err != nil {
		msg := err.Error()
		_ = s.coordinator.Finalize(ctx, handle, runcoordinator.FinalizeInput{
			Status:      model.RunFailed,
			FinishedAt:  s.now(),
			ErrorSample: &msg,
			DurationMS:  duration.Milliseconds(),
		})
		return HourlyResult{}, err
	}

	if err := s.coordinator.Finalize(ctx, handle, runcoordinator.FinalizeInput{
		Status:           summary.Status,
		FinishedAt:       s.now(),
		EventsTotal:      summary.EventsTotal,
		EventsProcessed:  summary.EventsProcessed,
		EventsSucceeded:  summary.EventsSucceeded,
		EventsFailed:     summary.EventsFailed,
		EventsSkipped:    summary.EventsSkipped,
		BatchCount:       summary.BatchCount,
		ErrorSample:      summary.FirstError,
		DurationMS:       duration.Milliseconds(),
		RetentionSummary: summary.RetentionSummary,
	}); err != nil {
		s.logger.WithError(err).Error("service: failed to finalize poller run")
	}

	return HourlyResult{
		Status:          string(summary.Status),
		HourBucket:      hourBucket,
		EventsTotal:     summary.EventsTotal,
		EventsSucceeded: summary.EventsSucceeded,
		EventsFailed:    summary.EventsFailed,
		EventsSkipped:   summary.EventsSkipped,
		TotalDurationMS: duration.Milliseconds(),
	}, nil
}

// DailyResult is the response C9's daily entry point returns.
type DailyResult struct {
	RetentionDays     int
	Cutoff            time.Time
	EndedEventCount   int
	DeletedHourlyRows int64
}

// RunDaily implements spec §4.9's daily entry point: the storage-side
// rollup, then C8.
func (s *Service) RunDaily(ctx context.Context) (DailyResult, error) {
	now := s.now()
	if err := s.prices.RollupHourlyToDaily(ctx, now); err != nil {
		return DailyResult{}, err
	}

	result, err := s.retention.Enforce(ctx, now)
	if err != nil {
		return DailyResult{}, err
	}
	return DailyResult{
		RetentionDays:     result.RetentionDays,
		Cutoff:            result.Cutoff,
		EndedEventCount:   result.EndedEventCount,
		DeletedHourlyRows: result.DeletedHourlyRows,
	}, nil
}

// RefreshMetadata implements spec §4.9's refresh-metadata entry point.
func (s *Service) RefreshMetadata(ctx context.Context, ids []int64, dryRun bool) (metadata.Summary, error) {
	return s.refresher.Refresh(ctx, ids, dryRun)
}
