package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinAggregator/internal/domain"
	"CoinAggregator/internal/infrastructure/storage"
	"CoinAggregator/internal/scanner"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerTickRunsAggregationAndRetention(t *testing.T) {
	t.Parallel()

	clock := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	repo := storage.NewMemoryRepository().WithClock(func() time.Time { return clock })
	ctx := context.Background()

	_, err := repo.UpsertBatch(ctx, []domain.CatalogItem{listing("Gone", "/old", 10)})
	require.NoError(t, err)
	clock = clock.Add(45 * 24 * time.Hour)

	src := &fakeScanner{name: "Live", result: scanner.Result{Items: []domain.CatalogItem{listing("Live", "/1", 10)}}}
	agg := NewAggregator(AggregatorDeps{Scanners: []scanner.Scanner{src}, Repository: repo, Outcomes: repo})
	driver := &manualDriver{}
	sched := NewScheduler(driver, agg, 30, nil)

	require.NoError(t, sched.Start(ctx))
	require.NotNil(t, driver.job)
	driver.job(clock)

	stats, err := repo.SourceStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "Live", stats[0].SourceName)
	assert.Equal(t, 1, src.Calls())

	require.NoError(t, sched.Stop(ctx))
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutDriver(t *testing.T) {
	t.Parallel()

	sched := NewScheduler(nil, nil, 30, nil)
	assert.NoError(t, sched.Start(context.Background()))
	assert.NoError(t, sched.Stop(context.Background()))
}
