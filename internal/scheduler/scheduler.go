// Package scheduler wires up the cron jobs that periodically trigger a
// scraping run and the two maintenance sweeps.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobmate/ingest-service/internal/pipeline"
	"jobmate/ingest-service/internal/session"
)

const (
	DefaultRetrySpec  = "@every 1h"
	DefaultNotifySpec = "@every 15m"
)

// Pipeline is implemented by *pipeline.Runner.
type Pipeline interface {
	Run(ctx context.Context) (*session.Session, error)
	RetryFailed(ctx context.Context) (pipeline.RetryStats, error)
	NotifyPending(ctx context.Context) (pipeline.NotifyStats, error)
}

// Specs are the cron expressions of each job.
type Specs struct {
	Run    string
	Retry  string
	Notify string
}

// Scheduler wraps robfig/cron. Each job skips a tick while its previous
// invocation is still running.
type Scheduler struct {
	cron   *cron.Cron
	p      Pipeline
	specs  Specs
	logger *zap.Logger
}

// New creates a Scheduler. Empty sweep specs select the defaults.
func New(p Pipeline, specs Specs, logger *zap.Logger) *Scheduler {
	if specs.Retry == "" {
		specs.Retry = DefaultRetrySpec
	}
	if specs.Notify == "" {
		specs.Notify = DefaultNotifySpec
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		p:      p,
		specs:  specs,
		logger: logger,
	}
}

// Start registers the jobs and starts the scheduler. With runNow one run
// starts immediately so fresh deployments do not wait for the first tick.
func (s *Scheduler) Start(ctx context.Context, runNow bool) error {
	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"run", s.specs.Run, func() { s.run(ctx) }},
		{"retry-failed", s.specs.Retry, func() { s.retry(ctx) }},
		{"notify", s.specs.Notify, func() { s.notify(ctx) }},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("cron.AddFunc %s (%q): %w", j.name, j.spec, err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron started",
		zap.String("run", s.specs.Run),
		zap.String("retry", s.specs.Retry),
		zap.String("notify", s.specs.Notify))

	if runNow {
		go s.run(ctx)
	}
	return nil
}

// Stop halts the scheduler and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info("cron stopped")
	return ctx
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) run(ctx context.Context) {
	sess, err := s.p.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled run", zap.Error(err))
		return
	}
	s.logger.Info("scheduled run finished",
		zap.String("sessionId", sess.ID), zap.String("status", string(sess.Status)))
}

func (s *Scheduler) retry(ctx context.Context) {
	if _, err := s.p.RetryFailed(ctx); err != nil {
		s.logger.Error("retry sweep", zap.Error(err))
	}
}

func (s *Scheduler) notify(ctx context.Context) {
	if _, err := s.p.NotifyPending(ctx); err != nil {
		s.logger.Error("notification sweep", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...any) { l.s.Debugw(msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}
