// Package scheduler runs the app's periodic jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/careercompass/core"
)

// Reconciler recomputes denormalized enrollment counts.
type Reconciler interface {
	ReconcileEnrollmentCounts(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	logger     core.Logger
	timeout    time.Duration
}

// New registers the reconciliation job on the given cron spec (e.g. "@every 1h").
func New(spec string, reconciler Reconciler, logger core.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger}))),
		reconciler: reconciler,
		logger:     logger,
		timeout:    5 * time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.ReconcileEnrollmentCounts); err != nil {
		return nil, errors.Wrapf(err, "scheduling enrollment count reconciliation %q", spec)
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling & waits for running jobs, at most until ctx is done.
// It returns ctx.Err() when a job is still running at the deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReconcileEnrollmentCounts is the job body. Errors are logged, never returned.
func (s *Scheduler) ReconcileEnrollmentCounts() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	fixed, err := s.reconciler.ReconcileEnrollmentCounts(ctx)
	if err != nil {
		s.logger.Error(fmt.Sprintf("reconciling enrollment counts: %v", err), err)
		return
	}
	if fixed > 0 {
		s.logger.Warn(fmt.Sprintf("reconciled enrollment counts: %d course(s) were out of sync", fixed))
	} else {
		s.logger.Debug("reconciled enrollment counts: all in sync")
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(fmt.Sprintf("cron: %s %v", msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s %v: %v", msg, keysAndValues, err), err)
}
