package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// JobFunc is invoked on every interval.
type JobFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives a recurring job for the lifetime of a context.
// Intervals missed while a job is still executing are dropped, never
// queued, so a slow backend can not build up a backlog of runs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts: opts,
		logger: logger.With().
			Str("component", "scheduler").
			Str("job", opts.Name).
			Logger(),
	}
}

// Run blocks, invoking the job at each interval until ctx is cancelled.
// Job errors are logged and the loop continues; only context cancellation
// terminates the scheduler.
func (s *Scheduler) Run(ctx context.Context, job JobFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := time.Now().Add(s.opts.Interval)
	for {
		delay := time.Until(next)
		if delay < 0 {
			// The previous run overran one or more intervals; skip
			// the missed firings and rejoin the cadence.
			next = time.Now().Add(s.opts.Interval)
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.logger.Debug().Msg("executing scheduled job")
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled job failed")
		}

		next = next.Add(s.opts.Interval)
	}
}
