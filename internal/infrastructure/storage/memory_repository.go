package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"CoinAggregator/internal/domain"
	"CoinAggregator/internal/ports"
)

type memoryEntry struct {
	item domain.CatalogItem
	seq  int64
}

// MemoryRepository keeps the catalog in process memory. It is used when no
// database is configured and in tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	items    map[string]*memoryEntry
	outcomes []domain.RunOutcome
	seq      int64
	now      func() time.Time
}

var _ ports.Store = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: map[string]*memoryEntry{}, now: time.Now}
}

// WithClock replaces the time source used for timestamps.
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// UpsertBatch inserts or overwrites items atomically.
func (r *MemoryRepository) UpsertBatch(_ context.Context, items []domain.CatalogItem) (int, error) {
	items = dedupeByID(items)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	for _, item := range items {
		item.UpdatedAt = now
		if existing, ok := r.items[item.ID]; ok {
			item.CreatedAt = existing.item.CreatedAt
			existing.item = item
			continue
		}
		item.CreatedAt = now
		r.seq++
		r.items[item.ID] = &memoryEntry{item: item, seq: r.seq}
	}
	return len(items), nil
}

// DeleteOlderThan removes items not refreshed within ageDays.
func (r *MemoryRepository) DeleteOlderThan(_ context.Context, ageDays int) (int64, error) {
	if ageDays <= 0 {
		return 0, fmt.Errorf("retention age must be positive, got %d", ageDays)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().UTC().Add(-time.Duration(ageDays) * 24 * time.Hour)
	var removed int64
	for id, entry := range r.items {
		if entry.item.UpdatedAt.Before(cutoff) {
			delete(r.items, id)
			removed++
		}
	}
	return removed, nil
}

// Get loads one item by id.
func (r *MemoryRepository) Get(_ context.Context, id string) (domain.CatalogItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.items[id]
	if !ok {
		return domain.CatalogItem{}, domain.ErrNotFound
	}
	return entry.item, nil
}

// Search filters, orders newest first (insertion order on ties) and pages.
// Matches are copied under the read lock so a concurrent batch is seen either
// whole or not at all.
func (r *MemoryRepository) Search(_ context.Context, filter domain.Filter, page, limit int) (domain.SearchResult, error) {
	limit = max(limit, 1)

	r.mu.RLock()
	matched := make([]memoryEntry, 0, len(r.items))
	for _, entry := range r.items {
		if filter.Matches(entry.item) {
			matched = append(matched, *entry)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.item.CreatedAt.Equal(b.item.CreatedAt) {
			return a.item.CreatedAt.After(b.item.CreatedAt)
		}
		return a.seq < b.seq
	})

	result := domain.SearchResult{Total: len(matched), Items: make([]domain.CatalogItem, 0, limit)}
	start := pageOffset(page, limit)
	if start >= len(matched) {
		return result, nil
	}
	end := start + min(limit, len(matched)-start)
	for _, entry := range matched[start:end] {
		result.Items = append(result.Items, entry.item)
	}
	return result, nil
}

// SourceStats reports per-source counts sorted by source name.
func (r *MemoryRepository) SourceStats(_ context.Context) ([]domain.SourceStats, error) {
	r.mu.RLock()
	bySource := map[string]*domain.SourceStats{}
	for _, entry := range r.items {
		s, ok := bySource[entry.item.SourceName]
		if !ok {
			s = &domain.SourceStats{SourceName: entry.item.SourceName}
			bySource[entry.item.SourceName] = s
		}
		s.Count++
		if entry.item.UpdatedAt.After(s.LastUpdated) {
			s.LastUpdated = entry.item.UpdatedAt
		}
	}
	r.mu.RUnlock()

	stats := make([]domain.SourceStats, 0, len(bySource))
	for _, s := range bySource {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].SourceName < stats[j].SourceName })
	return stats, nil
}

// LogRunOutcome appends one outcome.
func (r *MemoryRepository) LogRunOutcome(_ context.Context, outcome domain.RunOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = r.now().UTC()
	}
	outcome.ID = int64(len(r.outcomes) + 1)
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

// ListOutcomes returns the most recent outcomes, newest first.
func (r *MemoryRepository) ListOutcomes(_ context.Context, limit int) ([]domain.RunOutcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit = max(limit, 1)
	out := make([]domain.RunOutcome, 0, min(limit, len(r.outcomes)))
	for i := len(r.outcomes) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.outcomes[i])
	}
	return out, nil
}

// Health always succeeds for the in-memory store.
func (r *MemoryRepository) Health(context.Context) error {
	return nil
}
