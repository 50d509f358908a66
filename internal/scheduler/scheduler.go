// Package scheduler runs story generation on a cron schedule.
//
// Runs never overlap: a tick that fires while the previous generation is
// still going is skipped and logged.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"storyreel/internal/logging"
)

// RunFunc performs one scheduled generation.
type RunFunc func(ctx context.Context)

// Scheduler triggers RunFunc on a standard cron expression.
type Scheduler struct {
	spec     string
	run      RunFunc
	logger   *slog.Logger
	cron     *cron.Cron
	schedule cron.Schedule
	entry    cron.EntryID
	ctx      context.Context
}

// New parses spec (five fields or a descriptor such as @hourly) and prepares
// the schedule. It does not start it.
func New(spec string, run RunFunc, logger *slog.Logger) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("schedule is empty")
	}
	if run == nil {
		return nil, fmt.Errorf("run func is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	logger = logger.With(logging.String(logging.FieldComponent, "scheduler"))
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		spec:     spec,
		run:      run,
		logger:   logger,
		schedule: schedule,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx: context.Background(),
	}
	s.entry = s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	return s, nil
}

// Next returns the next activation time. Before the loop starts it is
// computed from the current time.
func (s *Scheduler) Next() time.Time {
	if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
		return next
	}
	return s.schedule.Next(time.Now())
}

// Run starts the schedule and blocks until ctx is done. It then waits for a
// generation in progress to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("schedule started",
		logging.String(logging.FieldEventType, "schedule_started"),
		logging.String("cron", s.spec),
		logging.String("next_run", s.Next().Format(time.RFC3339)),
	)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("schedule stopped", logging.String(logging.FieldEventType, "schedule_stopped"))
	return nil
}

func (s *Scheduler) fire() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.logger.Info("scheduled generation started", logging.String(logging.FieldEventType, "schedule_fired"))
	s.run(s.ctx)
	s.logger.Info("scheduled generation finished",
		logging.String(logging.FieldEventType, "schedule_run_finished"),
		logging.Duration("elapsed", time.Since(start)),
		logging.String("next_run", s.Next().Format(time.RFC3339)),
	)
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
