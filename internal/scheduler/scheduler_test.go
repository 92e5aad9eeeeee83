package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	s := New(Options{Name: "test", Interval: 10 * time.Millisecond}, zerolog.Nop())

	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected at least 2 job invocations, got %d", calls.Load())
	}
}

func TestSchedulerContinuesAfterJobError(t *testing.T) {
	s := New(Options{Name: "test", Interval: 5 * time.Millisecond}, zerolog.Nop())

	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = s.Run(ctx, func(ctx context.Context) error {
			calls.Add(1)
			return errors.New("boom")
		})
	}()

	time.Sleep(60 * time.Millisecond)
	if calls.Load() < 2 {
		t.Fatalf("job errors must not stop the scheduler, got %d invocations", calls.Load())
	}
}

func TestSchedulerDropsMissedIntervals(t *testing.T) {
	interval := 10 * time.Millisecond
	s := New(Options{Name: "test", Interval: interval}, zerolog.Nop())

	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		_ = s.Run(ctx, func(ctx context.Context) error {
			calls.Add(1)
			time.Sleep(4 * interval)
			return nil
		})
	}()

	time.Sleep(110 * time.Millisecond)
	cancel()

	// A queueing scheduler would accumulate ~10 runs; with skipped
	// firings each run costs roughly five intervals.
	if n := calls.Load(); n > 4 {
		t.Fatalf("missed intervals must be dropped, not queued; got %d runs", n)
	}
}
