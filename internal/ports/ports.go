package ports

import (
	"context"
	"time"

	"CoinAggregator/internal/domain"
)

// CatalogRepository persists merged catalog items and answers queries over them.
type CatalogRepository interface {
	// UpsertBatch inserts new ids and overwrites existing ones, one transaction
	// per chunk. It returns the number of rows written.
	UpsertBatch(ctx context.Context, items []domain.CatalogItem) (int, error)
	// DeleteOlderThan removes items whose updatedAt is older than ageDays.
	DeleteOlderThan(ctx context.Context, ageDays int) (int64, error)
	Get(ctx context.Context, id string) (domain.CatalogItem, error)
	Search(ctx context.Context, filter domain.Filter, page, limit int) (domain.SearchResult, error)
	SourceStats(ctx context.Context) ([]domain.SourceStats, error)
	Health(ctx context.Context) error
}

// OutcomeLog is the append-only record of per-source run outcomes.
type OutcomeLog interface {
	LogRunOutcome(ctx context.Context, outcome domain.RunOutcome) error
	ListOutcomes(ctx context.Context, limit int) ([]domain.RunOutcome, error)
}

// Store is what the storage backends implement.
type Store interface {
	CatalogRepository
	OutcomeLog
}

// Notifier streams run summaries to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when periodic jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// RateLimiter decides whether a caller identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
