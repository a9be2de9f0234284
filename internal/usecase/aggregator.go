package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"CoinAggregator/internal/domain"
	"CoinAggregator/internal/metrics"
	"CoinAggregator/internal/ports"
	"CoinAggregator/internal/scanner"
)

// ErrAlreadyRunning rejects a run requested while another one is active.
var ErrAlreadyRunning = errors.New("aggregation already in progress")

// AggregatorDeps wires the adapters and driven ports into the run coordinator.
type AggregatorDeps struct {
	Scanners   []scanner.Scanner
	Repository ports.CatalogRepository
	Outcomes   ports.OutcomeLog
	Notifier   ports.Notifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Aggregator runs every scanner in order and merges the results into the
// catalog. At most one run executes at a time.
type Aggregator struct {
	scanners   []scanner.Scanner
	repository ports.CatalogRepository
	outcomes   ports.OutcomeLog
	notifier   ports.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger

	running  *semaphore.Weighted
	inflight sync.WaitGroup
	now      func() time.Time
	newRunID func() string
}

// NewAggregator constructs the coordinator.
func NewAggregator(deps AggregatorDeps) *Aggregator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{
		scanners:   deps.Scanners,
		repository: deps.Repository,
		outcomes:   deps.Outcomes,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "aggregator"),
		running:    semaphore.NewWeighted(1),
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
}

// Run executes one aggregation. When a run is already active it returns
// immediately with ErrAlreadyRunning and an unsuccessful result. The returned
// error is otherwise non-nil only when storage is unavailable; source failures
// are reported in the result.
func (a *Aggregator) Run(ctx context.Context) (domain.AggregationResult, error) {
	if !a.running.TryAcquire(1) {
		a.metrics.RecordRun("skipped", 0)
		a.logger.Warn("aggregation rejected", "reason", ErrAlreadyRunning)
		return domain.AggregationResult{
			Success: false,
			Errors:  []string{ErrAlreadyRunning.Error()},
		}, ErrAlreadyRunning
	}
	defer a.running.Release(1)

	return a.run(ctx)
}

// Start launches a run in the background and reports whether it was started.
// The run keeps going after the caller's request ends; it stops only when ctx
// is cancelled.
func (a *Aggregator) Start(ctx context.Context) bool {
	if !a.running.TryAcquire(1) {
		a.metrics.RecordRun("skipped", 0)
		return false
	}

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer a.running.Release(1)

		result, err := a.run(ctx)
		if err != nil {
			a.logger.Error("background aggregation failed", "error", err)
			return
		}
		a.logger.Info("background aggregation completed", "success", result.Success, "total_items", result.TotalItems)
	}()
	return true
}

// Wait blocks until background runs started with Start have returned.
func (a *Aggregator) Wait() {
	a.inflight.Wait()
}

// Running reports whether a run is in progress.
func (a *Aggregator) Running() bool {
	if a.running.TryAcquire(1) {
		a.running.Release(1)
		return false
	}
	return true
}

func (a *Aggregator) run(ctx context.Context) (domain.AggregationResult, error) {
	start := a.now()
	runID := a.newRunID()
	logger := a.logger.With("run_id", runID)

	result := domain.AggregationResult{Errors: []string{}}

	if a.repository == nil {
		return result, errors.New("catalog repository is not configured")
	}
	if err := a.repository.Health(ctx); err != nil {
		a.metrics.RecordRun("failed", time.Since(start))
		logger.Error("storage unavailable, aborting aggregation", "error", err)
		return result, fmt.Errorf("storage unavailable: %w", err)
	}

	logger.Info("aggregation started", "sources", len(a.scanners))

	summaries := make([]sourceSummary, 0, len(a.scanners))
	for _, s := range a.scanners {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("aggregation cancelled: %v", err))
			logger.Warn("aggregation cancelled", "error", err)
			break
		}

		summary := a.runSource(ctx, logger, runID, s)
		summaries = append(summaries, summary)
		result.TotalItems += summary.items
		result.Errors = append(result.Errors, summary.errors...)
	}

	result.Success = len(result.Errors) == 0
	elapsed := a.now().Sub(start)

	outcome := "success"
	if !result.Success {
		outcome = "partial"
	}
	a.metrics.RecordRun(outcome, elapsed)
	logger.Info("aggregation completed",
		"success", result.Success,
		"total_items", result.TotalItems,
		"errors", len(result.Errors),
		"duration", elapsed,
	)

	a.notify(ctx, logger, runID, result, summaries)

	return result, nil
}

type sourceSummary struct {
	name   string
	items  int
	errors []string
	failed bool
}

// runSource isolates one scanner: nothing it does can abort the run.
func (a *Aggregator) runSource(ctx context.Context, logger *slog.Logger, runID string, s scanner.Scanner) sourceSummary {
	name := s.Name()
	summary := sourceSummary{name: name}
	logger = logger.With("source", name)

	res, err := scanSafely(ctx, s)
	if err != nil {
		summary.failed = true
		summary.errors = append(summary.errors, fmt.Sprintf("Scraper %s failed: %v", name, err))
		logger.Error("scraper failed", "error", err)
		a.metrics.RecordSourceOutcome(name, string(domain.OutcomeError), 0)
		a.logOutcome(ctx, logger, domain.RunOutcome{
			RunID:      runID,
			SourceName: name,
			Status:     domain.OutcomeError,
			Error:      err.Error(),
		})
		return summary
	}

	summary.errors = append(summary.errors, res.Errors...)

	items := domain.AcceptedItems(res.Items)
	if dropped := len(res.Items) - len(items); dropped > 0 {
		logger.Debug("dropped incomplete items", "count", dropped)
	}
	if len(items) == 0 {
		logger.Info("scraper produced no items", "errors", len(res.Errors))
		return summary
	}

	written, err := a.repository.UpsertBatch(ctx, items)
	summary.items = written
	if err != nil {
		summary.failed = true
		summary.errors = append(summary.errors, fmt.Sprintf("Scraper %s failed: persist items: %v", name, err))
		logger.Error("persist items failed", "written", written, "error", err)
		a.metrics.RecordSourceOutcome(name, string(domain.OutcomeError), written)
		a.logOutcome(ctx, logger, domain.RunOutcome{
			RunID:      runID,
			SourceName: name,
			Status:     domain.OutcomeError,
			ItemCount:  written,
			Error:      err.Error(),
		})
		return summary
	}

	logger.Info("scraper succeeded", "items", written, "errors", len(res.Errors))
	a.metrics.RecordSourceOutcome(name, string(domain.OutcomeSuccess), written)
	a.logOutcome(ctx, logger, domain.RunOutcome{
		RunID:      runID,
		SourceName: name,
		Status:     domain.OutcomeSuccess,
		ItemCount:  written,
	})
	return summary
}

// scanSafely turns a panicking scanner into an ordinary error.
func scanSafely(ctx context.Context, s scanner.Scanner) (res scanner.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Scan(ctx)
}

// logOutcome never fails the run; committed items stay committed.
func (a *Aggregator) logOutcome(ctx context.Context, logger *slog.Logger, outcome domain.RunOutcome) {
	if a.outcomes == nil {
		return
	}
	outcome.RecordedAt = a.now().UTC()
	if err := a.outcomes.LogRunOutcome(ctx, outcome); err != nil {
		logger.Error("record run outcome failed", "status", outcome.Status, "error", err)
	}
}

func (a *Aggregator) notify(ctx context.Context, logger *slog.Logger, runID string, result domain.AggregationResult, summaries []sourceSummary) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.PublishDigest(ctx, formatDigest(runID, result, summaries)); err != nil {
		logger.Warn("publish run summary failed", "error", err)
	}
}

func formatDigest(runID string, result domain.AggregationResult, summaries []sourceSummary) string {
	var b strings.Builder
	status := "completed"
	if !result.Success {
		status = "completed with errors"
	}
	fmt.Fprintf(&b, "Coin aggregation %s (run %s)\n", status, runID)
	fmt.Fprintf(&b, "Total items: %d\n", result.TotalItems)
	for _, s := range summaries {
		mark := "ok"
		if s.failed {
			mark = "failed"
		} else if len(s.errors) > 0 {
			mark = fmt.Sprintf("%d errors", len(s.errors))
		}
		fmt.Fprintf(&b, "- %s: %d items (%s)\n", s.name, s.items, mark)
	}
	return b.String()
}

// Cleanup runs the retention sweep, removing items not refreshed within
// ageDays. Items that simply vanish from a source are only removed here.
func (a *Aggregator) Cleanup(ctx context.Context, ageDays int) (int64, error) {
	removed, err := a.repository.DeleteOlderThan(ctx, ageDays)
	if err != nil {
		return 0, fmt.Errorf("retention sweep: %w", err)
	}
	a.metrics.AddRetentionDeleted(removed)
	a.logger.Info("retention sweep completed", "age_days", ageDays, "removed", removed)
	return removed, nil
}
