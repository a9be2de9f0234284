package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS coins (
		seq           BIGSERIAL,
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		price         NUMERIC(12, 2) NOT NULL,
		currency      TEXT NOT NULL DEFAULT 'USD',
		year          INTEGER,
		mint          TEXT,
		grade         TEXT,
		certification TEXT,
		coin_type     TEXT NOT NULL DEFAULT 'Other',
		image_url     TEXT,
		source_url    TEXT NOT NULL,
		source_name   TEXT NOT NULL,
		availability  TEXT NOT NULL DEFAULT 'unknown',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS scrape_log (
		id            BIGSERIAL PRIMARY KEY,
		run_id        TEXT NOT NULL DEFAULT '',
		source_name   TEXT NOT NULL,
		status        TEXT NOT NULL,
		coins_scraped INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		scraped_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_coins_price ON coins (price)`,
	`CREATE INDEX IF NOT EXISTS idx_coins_year ON coins (year)`,
	`CREATE INDEX IF NOT EXISTS idx_coins_source ON coins (source_name)`,
	`CREATE INDEX IF NOT EXISTS idx_coins_type ON coins (coin_type)`,
	`CREATE INDEX IF NOT EXISTS idx_coins_created ON coins (created_at DESC, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_coins_updated ON coins (updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_log_scraped ON scrape_log (scraped_at DESC)`,
}

// Migrate creates the catalog tables and indexes when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
