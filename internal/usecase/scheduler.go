package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"CoinAggregator/internal/ports"
)

// Scheduler wires the interval driver with aggregation and retention.
type Scheduler struct {
	driver        ports.Scheduler
	aggregator    *Aggregator
	retentionDays int
	logger        *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs. A non-positive
// retentionDays disables the sweep.
func NewScheduler(driver ports.Scheduler, aggregator *Aggregator, retentionDays int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		driver:        driver,
		aggregator:    aggregator,
		retentionDays: retentionDays,
		logger:        logger.With("component", "scheduler"),
	}
}

// Start registers the job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.aggregator == nil {
		return nil
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		s.Tick(ctx, trigger)
	})
}

// Tick performs one scheduled cycle: an aggregation run followed by the
// retention sweep.
func (s *Scheduler) Tick(ctx context.Context, trigger time.Time) {
	s.logger.Info("scheduled aggregation", "trigger", trigger.Format(time.RFC3339))

	_, err := s.aggregator.Run(ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.logger.Info("skipping scheduled run", "reason", err)
	case err != nil:
		s.logger.Error("scheduled aggregation failed", "error", err)
	}

	if s.retentionDays <= 0 || ctx.Err() != nil {
		return
	}
	if _, err := s.aggregator.Cleanup(ctx, s.retentionDays); err != nil {
		s.logger.Error("retention sweep failed", "error", err)
	}
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
