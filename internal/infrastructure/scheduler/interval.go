package scheduler

import (
	"context"
	"sync"
	"time"

	"CoinAggregator/internal/ports"
)

// IntervalScheduler fires a job after an initial delay and then on a fixed
// interval. Jobs never overlap: the next tick waits for the current job.
type IntervalScheduler struct {
	interval     time.Duration
	initialDelay time.Duration
	runOnStart   bool

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler. When runOnStart is false the first
// job fires one full interval after Start.
func NewIntervalScheduler(interval, initialDelay time.Duration, runOnStart bool) *IntervalScheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if initialDelay < 0 {
		initialDelay = 0
	}
	return &IntervalScheduler{interval: interval, initialDelay: initialDelay, runOnStart: runOnStart}
}

// Start begins ticking; calling it twice is a no-op.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	go func() {
		defer close(done)

		if s.runOnStart {
			if !wait(ctx, stop, s.initialDelay) {
				return
			}
			job(time.Now())
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for a running job to return, or
// for ctx to expire.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wait(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
