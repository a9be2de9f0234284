package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"

	"CoinAggregator/internal/domain"
	"CoinAggregator/internal/ports"
)

const (
	similarYearSpread = 1
	keywordMinLength  = 4
)

// CatalogLimits bounds paging on the read side.
type CatalogLimits struct {
	DefaultLimit int
	MaxLimit     int
	ExportLimit  int
	SimilarLimit int
}

// Page is one page of search results plus the pagination envelope.
type Page struct {
	Items      []domain.CatalogItem
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// Catalog answers read queries over the merged catalog.
type Catalog struct {
	repository ports.CatalogRepository
	outcomes   ports.OutcomeLog
	limits     CatalogLimits
}

// NewCatalog wires the read side; zero limits fall back to defaults.
func NewCatalog(repo ports.CatalogRepository, outcomes ports.OutcomeLog, limits CatalogLimits) *Catalog {
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = 24
	}
	if limits.MaxLimit < limits.DefaultLimit {
		limits.MaxLimit = max(limits.DefaultLimit, 100)
	}
	if limits.ExportLimit <= 0 {
		limits.ExportLimit = 1000
	}
	if limits.SimilarLimit <= 0 {
		limits.SimilarLimit = 20
	}
	return &Catalog{repository: repo, outcomes: outcomes, limits: limits}
}

// Search normalises paging and runs the filtered query. Page numbers below 1
// become 1; a missing limit gets the default and large limits are clamped.
// Pages whose offset would overflow are clamped to the last addressable page.
func (c *Catalog) Search(ctx context.Context, filter domain.Filter, page, limit int) (Page, error) {
	if limit < 1 {
		limit = c.limits.DefaultLimit
	}
	limit = min(limit, c.limits.MaxLimit)
	page = min(max(page, 1), math.MaxInt/limit)

	res, err := c.repository.Search(ctx, filter, page, limit)
	if err != nil {
		return Page{}, fmt.Errorf("search catalog: %w", err)
	}

	return Page{
		Items:      res.Items,
		Page:       page,
		Limit:      limit,
		Total:      res.Total,
		TotalPages: int(math.Ceil(float64(res.Total) / float64(limit))),
	}, nil
}

// Get returns one item or domain.ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (domain.CatalogItem, error) {
	return c.repository.Get(ctx, id)
}

// Similar lists items of the same category within a year of the reference
// item that share at least one title keyword with it. It is a display aid,
// not an identity match.
func (c *Catalog) Similar(ctx context.Context, id string) ([]domain.CatalogItem, error) {
	ref, err := c.repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	filter := domain.Filter{Category: ref.Category}
	if ref.Year != nil {
		minYear := *ref.Year - similarYearSpread
		maxYear := *ref.Year + similarYearSpread
		filter.MinYear = &minYear
		filter.MaxYear = &maxYear
	}

	res, err := c.repository.Search(ctx, filter, 1, c.limits.SimilarLimit)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}

	keywords := titleKeywords(ref.Title)
	similar := make([]domain.CatalogItem, 0, len(res.Items))
	for _, candidate := range res.Items {
		if candidate.ID == ref.ID {
			continue
		}
		if sharesKeyword(strings.ToLower(candidate.Title), keywords) {
			similar = append(similar, candidate)
		}
	}
	return similar, nil
}

// Export returns up to ExportLimit matching items in search order.
func (c *Catalog) Export(ctx context.Context, filter domain.Filter) ([]domain.CatalogItem, error) {
	res, err := c.repository.Search(ctx, filter, 1, c.limits.ExportLimit)
	if err != nil {
		return nil, fmt.Errorf("export catalog: %w", err)
	}
	return res.Items, nil
}

// SourceStats reports per-source counts.
func (c *Catalog) SourceStats(ctx context.Context) ([]domain.SourceStats, error) {
	stats, err := c.repository.SourceStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}
	return stats, nil
}

// RecentOutcomes lists the latest run outcomes, newest first.
func (c *Catalog) RecentOutcomes(ctx context.Context, limit int) ([]domain.RunOutcome, error) {
	if c.outcomes == nil {
		return []domain.RunOutcome{}, nil
	}
	if limit < 1 {
		limit = c.limits.DefaultLimit
	}
	outcomes, err := c.outcomes.ListOutcomes(ctx, min(limit, c.limits.MaxLimit))
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return outcomes, nil
}

// Health reports whether the catalog store is reachable.
func (c *Catalog) Health(ctx context.Context) error {
	return c.repository.Health(ctx)
}

func titleKeywords(title string) []string {
	var keywords []string
	for _, word := range strings.Split(strings.ToLower(title), " ") {
		if len(word) >= keywordMinLength {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

func sharesKeyword(title string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(title, k) {
			return true
		}
	}
	return false
}
