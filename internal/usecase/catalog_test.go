package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinAggregator/internal/domain"
	"CoinAggregator/internal/infrastructure/storage"
)

func seedCatalog(t *testing.T, items ...domain.CatalogItem) *storage.MemoryRepository {
	t.Helper()
	repo := storage.NewMemoryRepository()
	_, err := repo.UpsertBatch(context.Background(), items)
	require.NoError(t, err)
	return repo
}

func coin(id, title string, year int, category string) domain.CatalogItem {
	item := domain.CatalogItem{
		ID:         id,
		Title:      title,
		Price:      100,
		Category:   category,
		SourceURL:  "https://example.com/" + id,
		SourceName: "Test",
	}
	if year > 0 {
		item.Year = &year
	}
	return item
}

func TestCatalogSearchPaging(t *testing.T) {
	t.Parallel()

	var items []domain.CatalogItem
	for i := 0; i < 30; i++ {
		items = append(items, coin(string(rune('a'+i%26))+string(rune('0'+i/26)), "Coin", 2000, domain.CategoryGold))
	}
	catalog := NewCatalog(seedCatalog(t, items...), nil, CatalogLimits{DefaultLimit: 24, MaxLimit: 25})

	tests := []struct {
		name      string
		page      int
		limit     int
		wantPage  int
		wantLimit int
		wantItems int
		wantPages int
	}{
		{"defaults", 0, 0, 1, 24, 24, 2},
		{"second page", 2, 24, 2, 24, 6, 2},
		{"clamped limit", 1, 500, 1, 25, 25, 2},
		{"past the end", 9, 10, 9, 10, 0, 3},
		{"overflowing page", math.MaxInt, 10, math.MaxInt / 10, 10, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := catalog.Search(context.Background(), domain.Filter{}, tt.page, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, page.Page)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Len(t, page.Items, tt.wantItems)
			assert.Equal(t, 30, page.Total)
			assert.Equal(t, tt.wantPages, page.TotalPages)
		})
	}
}

func TestCatalogSearchPriceRange(t *testing.T) {
	t.Parallel()

	cheap := coin("cheap", "Cheap", 0, domain.CategorySilver)
	cheap.Price = 50
	mid := coin("mid", "Mid", 0, domain.CategorySilver)
	mid.Price = 150
	edge := coin("edge", "Edge", 0, domain.CategorySilver)
	edge.Price = 200
	pricey := coin("pricey", "Pricey", 0, domain.CategorySilver)
	pricey.Price = 250
	catalog := NewCatalog(seedCatalog(t, cheap, mid, edge, pricey), nil, CatalogLimits{})

	minPrice, maxPrice := 100.0, 200.0
	page, err := catalog.Search(context.Background(), domain.Filter{MinPrice: &minPrice, MaxPrice: &maxPrice}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.GreaterOrEqual(t, page.Items[0].Price, 100.0)
	assert.LessOrEqual(t, page.Items[0].Price, 200.0)
}

func TestCatalogSimilar(t *testing.T) {
	t.Parallel()

	repo := seedCatalog(t,
		coin("ref", "2021 American Gold Eagle 1 oz", 2021, domain.CategoryGold),
		coin("near", "2022 Gold Eagle Proof", 2022, domain.CategoryGold),
		coin("far-year", "2018 Gold Eagle", 2018, domain.CategoryGold),
		coin("other-type", "2021 American Silver Eagle", 2021, domain.CategorySilver),
		coin("no-keyword", "2020 Buffalo 1 oz", 2020, domain.CategoryGold),
	)
	catalog := NewCatalog(repo, nil, CatalogLimits{})

	similar, err := catalog.Similar(context.Background(), "ref")
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "near", similar[0].ID)

	_, err = catalog.Similar(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalogSimilarWithoutYear(t *testing.T) {
	t.Parallel()

	repo := seedCatalog(t,
		coin("ref", "Silver Round Buffalo", 0, domain.CategorySilver),
		coin("any-year", "Buffalo Silver Bar", 1990, domain.CategorySilver),
	)
	catalog := NewCatalog(repo, nil, CatalogLimits{})

	similar, err := catalog.Similar(context.Background(), "ref")
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "any-year", similar[0].ID)
}

func TestCatalogExportIsCapped(t *testing.T) {
	t.Parallel()

	repo := seedCatalog(t,
		coin("1", "One", 0, domain.CategoryOther),
		coin("2", "Two", 0, domain.CategoryOther),
		coin("3", "Three", 0, domain.CategoryOther),
	)
	catalog := NewCatalog(repo, nil, CatalogLimits{ExportLimit: 2})

	items, err := catalog.Export(context.Background(), domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCatalogRecentOutcomes(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, repo.LogRunOutcome(ctx, domain.RunOutcome{SourceName: name, Status: domain.OutcomeSuccess, RecordedAt: time.Now()}))
	}
	catalog := NewCatalog(repo, repo, CatalogLimits{})

	outcomes, err := catalog.RecentOutcomes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "C", outcomes[0].SourceName)

	empty, err := NewCatalog(repo, nil, CatalogLimits{}).RecentOutcomes(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
