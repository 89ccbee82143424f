// Package scheduler wires up a cron job that periodically triggers a crawl
// run, grounded on TheJobMateCompany-jobmate-backend's
// internal/scheduler/scheduler.go. It is an optional collaborator: nothing
// in the orchestrator depends on it, and a caller that only wants one-shot
// runs never constructs one.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edukz/vagas-scrapy/internal/logging"
)

// RunFunc performs one crawl pass. Errors are logged, not propagated, since
// a failed scheduled run must not prevent the next tick from firing.
type RunFunc func(ctx context.Context) error

// Scheduler wraps robfig/cron to fire RunFunc on a fixed spec.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	spec   string
	logger *logging.Logger
}

// New builds a Scheduler that fires run on the given cron spec (standard
// five-field syntax, or "@every 6h"-style descriptors).
func New(logger *logging.Logger, spec string, run RunFunc) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		run:    run,
		spec:   spec,
		logger: logger,
	}
}

// Start registers the job and starts the scheduler's own goroutine loop. It
// does not run a cycle immediately; the first execution happens at the next
// spec match, matching cron's own semantics rather than the teacher's
// run-once-on-startup shortcut, since an unattended scheduled crawler should
// not double-run at process start and again on the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Event(ctx, zapcore.InfoLevel, "scheduler", "started", zap.String("spec", s.spec))
	return nil
}

// Stop halts the scheduler and blocks until any in-flight run completes.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Event(ctx, zapcore.InfoLevel, "scheduler", "stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.logger.Event(ctx, zapcore.InfoLevel, "scheduler", "cycle_started")
	if err := s.run(ctx); err != nil {
		s.logger.Event(ctx, zapcore.ErrorLevel, "scheduler", "cycle_failed", zap.Error(err))
		return
	}
	s.logger.Event(ctx, zapcore.InfoLevel, "scheduler", "cycle_complete")
}
