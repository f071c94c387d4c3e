// Package scheduler implements the in-process half of C9: a
// robfig/cron/v3 scheduler that triggers the hourly and daily
// operations on a configurable cadence, recovering from panics in a
// scheduled job and running each tick under a bounded context.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// cronLogrusAdapter satisfies cron.Logger by forwarding to logrus,
// mirroring the reference app's use of a structured logger for cron's
// own error/info lines.
type cronLogrusAdapter struct {
	logger *logrus.Logger
}

func (a cronLogrusAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.WithFields(fieldsFrom(keysAndValues)).Info(msg)
}

func (a cronLogrusAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.WithFields(fieldsFrom(keysAndValues)).WithError(err).Error(msg)
}

func fieldsFrom(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}

// Scheduler owns the cron instance and the two jobs it triggers.
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Logger
}

// New builds a Scheduler using cron.WithSeconds so operators can offset
// ticks within the minute (e.g. "30 0 * * * *" to run 30 seconds past the
// top of every hour), avoiding a thundering herd against TE at the top of
// the hour.
func New(logger *logrus.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogrusAdapter{logger: logger})))
	return &Scheduler{cron: c, logger: logger}
}

// RunTimeout bounds a single scheduled invocation.
const RunTimeout = 10 * time.Minute

// AddHourly registers fn to run on hourlyCron, each invocation under a
// fresh bounded context.
func (s *Scheduler) AddHourly(hourlyCron string, fn func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(hourlyCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
		defer cancel()
		fn(ctx)
	})
	return err
}

// AddDaily registers fn to run on dailyCron, each invocation under a
// fresh bounded context.
func (s *Scheduler) AddDaily(dailyCron string, fn func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(dailyCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), RunTimeout)
		defer cancel()
		fn(ctx)
	})
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }
