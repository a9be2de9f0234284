package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"CoinAggregator/internal/domain"
	"CoinAggregator/internal/heuristics"
	"CoinAggregator/internal/infrastructure/storage"
	"CoinAggregator/internal/scanner"
)

type fakeScanner struct {
	name    string
	result  scanner.Result
	err     error
	panics  bool
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeScanner) Name() string { return f.name }

func (f *fakeScanner) Scan(ctx context.Context) (scanner.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.panics {
		panic("selector exploded")
	}
	return f.result, f.err
}

func (f *fakeScanner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingRepo struct {
	*storage.MemoryRepository
	healthErr error
	upsertErr error
}

func (r *failingRepo) Health(ctx context.Context) error {
	if r.healthErr != nil {
		return r.healthErr
	}
	return r.MemoryRepository.Health(ctx)
}

func (r *failingRepo) UpsertBatch(ctx context.Context, items []domain.CatalogItem) (int, error) {
	if r.upsertErr != nil {
		return 0, r.upsertErr
	}
	return r.MemoryRepository.UpsertBatch(ctx, items)
}

type recordingNotifier struct {
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.digests = append(n.digests, digest)
	return nil
}

func listing(source, path string, price float64) domain.CatalogItem {
	url := "https://" + strings.ToLower(strings.ReplaceAll(source, " ", "")) + ".example.com" + path
	return domain.CatalogItem{
		ID:           heuristics.ItemID(source, url),
		Title:        "2024 American Gold Eagle " + path,
		Description:  "2024 American Gold Eagle",
		Price:        price,
		Currency:     domain.DefaultCurrency,
		Category:     domain.CategoryGold,
		SourceURL:    url,
		SourceName:   source,
		Availability: domain.AvailabilityInStock,
	}
}

type AggregatorSuite struct {
	suite.Suite
	ctx   context.Context
	repo  *storage.MemoryRepository
	clock time.Time
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	s.repo = storage.NewMemoryRepository().WithClock(func() time.Time { return s.clock })
}

func (s *AggregatorSuite) newAggregator(scanners ...scanner.Scanner) *Aggregator {
	return NewAggregator(AggregatorDeps{
		Scanners:   scanners,
		Repository: s.repo,
		Outcomes:   s.repo,
	})
}

func (s *AggregatorSuite) TestRunPersistsEverySource() {
	apmex := &fakeScanner{name: "APMEX", result: scanner.Result{Items: []domain.CatalogItem{
		listing("APMEX", "/1", 2100), listing("APMEX", "/2", 2150),
	}}}
	jmb := &fakeScanner{name: "JM Bullion", result: scanner.Result{Items: []domain.CatalogItem{
		listing("JM Bullion", "/1", 2099),
	}}}

	result, err := s.newAggregator(apmex, jmb).Run(s.ctx)
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal(3, result.TotalItems)
	s.Empty(result.Errors)

	outcomes, err := s.repo.ListOutcomes(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 2)
	s.Equal("JM Bullion", outcomes[0].SourceName)
	s.Equal(1, outcomes[0].ItemCount)
	s.Equal("APMEX", outcomes[1].SourceName)
	s.Equal(domain.OutcomeSuccess, outcomes[1].Status)
	s.Equal(2, outcomes[1].ItemCount)
	s.Equal(outcomes[0].RunID, outcomes[1].RunID)
}

func (s *AggregatorSuite) TestFailingSourcesDoNotAbortRun() {
	broken := &fakeScanner{name: "Broken", err: errors.New("connection refused")}
	panicky := &fakeScanner{name: "Panicky", panics: true}
	healthy := &fakeScanner{name: "Healthy", result: scanner.Result{Items: []domain.CatalogItem{listing("Healthy", "/1", 30)}}}

	result, err := s.newAggregator(broken, panicky, healthy).Run(s.ctx)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Equal(1, result.TotalItems)
	s.Require().Len(result.Errors, 2)
	s.Equal("Scraper Broken failed: connection refused", result.Errors[0])
	s.Contains(result.Errors[1], "Scraper Panicky failed")

	stats, err := s.repo.SourceStats(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(stats, 1)
	s.Equal("Healthy", stats[0].SourceName)

	outcomes, err := s.repo.ListOutcomes(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 3)
	s.Equal(domain.OutcomeSuccess, outcomes[0].Status)
	s.Equal(domain.OutcomeError, outcomes[1].Status)
	s.Equal(domain.OutcomeError, outcomes[2].Status)
	s.Equal("connection refused", outcomes[2].Error)
}

func (s *AggregatorSuite) TestCategoryErrorsAreReportedWithItems() {
	partial := &fakeScanner{name: "Partial", result: scanner.Result{
		Items:  []domain.CatalogItem{listing("Partial", "/1", 40)},
		Errors: []string{"Partial category certified: unexpected status 503"},
	}}

	result, err := s.newAggregator(partial).Run(s.ctx)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Equal(1, result.TotalItems)
	s.Equal([]string{"Partial category certified: unexpected status 503"}, result.Errors)
}

func (s *AggregatorSuite) TestIncompleteItemsAreDropped() {
	noPrice := listing("Source", "/free", 0)
	noURL := listing("Source", "/nourl", 10)
	noURL.SourceURL = ""
	src := &fakeScanner{name: "Source", result: scanner.Result{Items: []domain.CatalogItem{
		noPrice, noURL, listing("Source", "/ok", 10),
	}}}

	result, err := s.newAggregator(src).Run(s.ctx)
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal(1, result.TotalItems)
}

func (s *AggregatorSuite) TestEmptySourceLogsNoOutcome() {
	empty := &fakeScanner{name: "Empty"}

	result, err := s.newAggregator(empty).Run(s.ctx)
	s.Require().NoError(err)
	s.True(result.Success)
	s.Zero(result.TotalItems)

	outcomes, err := s.repo.ListOutcomes(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(outcomes)
}

func (s *AggregatorSuite) TestSingleFlight() {
	slow := &fakeScanner{
		name:    "Slow",
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		result:  scanner.Result{Items: []domain.CatalogItem{listing("Slow", "/1", 10)}},
	}
	agg := s.newAggregator(slow)

	done := make(chan domain.AggregationResult, 1)
	go func() {
		res, _ := agg.Run(s.ctx)
		done <- res
	}()
	<-slow.entered
	s.True(agg.Running())

	second, err := agg.Run(s.ctx)
	s.ErrorIs(err, ErrAlreadyRunning)
	s.False(second.Success)
	s.Zero(second.TotalItems)
	s.Require().Len(second.Errors, 1)
	s.Contains(second.Errors[0], "already in progress")
	s.False(agg.Start(s.ctx))

	close(slow.release)
	first := <-done
	s.True(first.Success)
	s.Equal(1, slow.Calls())
	s.False(agg.Running())
}

func (s *AggregatorSuite) TestStartRunsInBackground() {
	src := &fakeScanner{name: "Bg", result: scanner.Result{Items: []domain.CatalogItem{listing("Bg", "/1", 10)}}}
	agg := s.newAggregator(src)

	s.True(agg.Start(s.ctx))
	agg.Wait()

	res, err := s.repo.Search(s.ctx, domain.Filter{Source: "Bg"}, 1, 10)
	s.Require().NoError(err)
	s.Equal(1, res.Total)
	s.False(agg.Running())
}

func (s *AggregatorSuite) TestStorageUnavailableAbortsRun() {
	repo := &failingRepo{MemoryRepository: s.repo, healthErr: errors.New("connection refused")}
	src := &fakeScanner{name: "Never"}
	agg := NewAggregator(AggregatorDeps{Scanners: []scanner.Scanner{src}, Repository: repo, Outcomes: repo})

	_, err := agg.Run(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "storage unavailable")
	s.Zero(src.Calls())

	repo.healthErr = nil
	_, err = agg.Run(s.ctx)
	s.NoError(err, "a failed run must release the single-flight slot")
	s.Equal(1, src.Calls())
}

func (s *AggregatorSuite) TestPersistFailureIsIsolated() {
	repo := &failingRepo{MemoryRepository: s.repo, upsertErr: errors.New("deadlock detected")}
	src := &fakeScanner{name: "Writer", result: scanner.Result{Items: []domain.CatalogItem{listing("Writer", "/1", 10)}}}
	agg := NewAggregator(AggregatorDeps{Scanners: []scanner.Scanner{src}, Repository: repo, Outcomes: repo})

	result, err := agg.Run(s.ctx)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "deadlock detected")

	outcomes, err := s.repo.ListOutcomes(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(outcomes, 1)
	s.Equal(domain.OutcomeError, outcomes[0].Status)
}

func (s *AggregatorSuite) TestRescrapeMergesSameListing() {
	src := &fakeScanner{name: "APMEX", result: scanner.Result{Items: []domain.CatalogItem{listing("APMEX", "/eagle", 2100)}}}
	agg := s.newAggregator(src)

	_, err := agg.Run(s.ctx)
	s.Require().NoError(err)
	first, err := s.repo.Search(s.ctx, domain.Filter{}, 1, 10)
	s.Require().NoError(err)
	s.Require().Len(first.Items, 1)

	s.clock = s.clock.Add(6 * time.Hour)
	src.result = scanner.Result{Items: []domain.CatalogItem{listing("APMEX", "/eagle", 2175.25)}}
	_, err = agg.Run(s.ctx)
	s.Require().NoError(err)

	res, err := s.repo.Search(s.ctx, domain.Filter{}, 1, 10)
	s.Require().NoError(err)
	s.Require().Len(res.Items, 1)
	s.Equal(2175.25, res.Items[0].Price)
	s.Equal(first.Items[0].CreatedAt, res.Items[0].CreatedAt)
	s.True(res.Items[0].UpdatedAt.After(first.Items[0].UpdatedAt))

	stats, err := s.repo.SourceStats(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(stats, 1)
	s.Equal(1, stats[0].Count)
}

func (s *AggregatorSuite) TestCleanup() {
	src := &fakeScanner{name: "Old", result: scanner.Result{Items: []domain.CatalogItem{listing("Old", "/1", 10)}}}
	agg := s.newAggregator(src)
	_, err := agg.Run(s.ctx)
	s.Require().NoError(err)

	s.clock = s.clock.Add(31 * 24 * time.Hour)
	removed, err := agg.Cleanup(s.ctx, 30)
	s.Require().NoError(err)
	s.EqualValues(1, removed)

	removed, err = agg.Cleanup(s.ctx, 30)
	s.Require().NoError(err)
	s.Zero(removed)

	outcomes, err := s.repo.ListOutcomes(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(outcomes, 1, "retention never touches the outcome log")
}

func (s *AggregatorSuite) TestNotifierReceivesSummary() {
	notifier := &recordingNotifier{}
	ok := &fakeScanner{name: "Good", result: scanner.Result{Items: []domain.CatalogItem{listing("Good", "/1", 10)}}}
	bad := &fakeScanner{name: "Bad", err: errors.New("timeout")}
	agg := NewAggregator(AggregatorDeps{
		Scanners:   []scanner.Scanner{ok, bad},
		Repository: s.repo,
		Outcomes:   s.repo,
		Notifier:   notifier,
	})
	agg.newRunID = func() string { return "run-1" }

	_, err := agg.Run(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(notifier.digests, 1)
	digest := notifier.digests[0]
	s.Contains(digest, "completed with errors (run run-1)")
	s.Contains(digest, "- Good: 1 items (ok)")
	s.Contains(digest, "- Bad: 0 items (failed)")
}

func (s *AggregatorSuite) TestCancelledContextStopsBeforeNextSource() {
	ctx, cancel := context.WithCancel(s.ctx)
	first := &fakeScanner{name: "First"}
	second := &fakeScanner{name: "Second"}
	agg := s.newAggregator(&cancellingScanner{fakeScanner: first, cancel: cancel}, second)

	result, err := agg.Run(ctx)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Zero(second.Calls())
}

type cancellingScanner struct {
	*fakeScanner
	cancel context.CancelFunc
}

func (c *cancellingScanner) Scan(ctx context.Context) (scanner.Result, error) {
	defer c.cancel()
	return c.fakeScanner.Scan(ctx)
}
