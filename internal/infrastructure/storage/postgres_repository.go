package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"CoinAggregator/internal/domain"
	"CoinAggregator/internal/ports"
)

const defaultBatchSize = 100

// PostgresRepository persists the catalog and the run log into Postgres.
type PostgresRepository struct {
	db        *sql.DB
	batchSize int
	now       func() time.Time
}

var _ ports.Store = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation. batchSize bounds how
// many items share one upsert transaction.
func NewPostgresRepository(db *sql.DB, batchSize int) *PostgresRepository {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &PostgresRepository{db: db, batchSize: batchSize, now: time.Now}
}

// UpsertBatch writes items chunk by chunk. A failing chunk is rolled back and
// stops the write; chunks committed before it stay committed.
func (r *PostgresRepository) UpsertBatch(ctx context.Context, items []domain.CatalogItem) (int, error) {
	items = dedupeByID(items)
	written := 0
	for i, part := range chunk(items, r.batchSize) {
		if err := r.upsertChunk(ctx, part); err != nil {
			return written, fmt.Errorf("upsert batch %d: %w", i+1, err)
		}
		written += len(part)
	}
	return written, nil
}

func (r *PostgresRepository) upsertChunk(ctx context.Context, items []domain.CatalogItem) error {
	query, args, err := upsertQuery(items, r.now().UTC())
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteOlderThan removes items not refreshed within ageDays.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, ageDays int) (int64, error) {
	if ageDays <= 0 {
		return 0, fmt.Errorf("retention age must be positive, got %d", ageDays)
	}
	cutoff := r.now().UTC().Add(-time.Duration(ageDays) * 24 * time.Hour)

	query, args, err := psql.Delete("coins").Where("updated_at < ?", cutoff).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Get loads one item by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (domain.CatalogItem, error) {
	query, args, err := psql.Select(itemColumns...).From("coins").Where("id = ?", id).ToSql()
	if err != nil {
		return domain.CatalogItem{}, fmt.Errorf("build get: %w", err)
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CatalogItem{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CatalogItem{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

// Search runs the count and the page query in one read-only snapshot so the
// total matches the page it accompanies.
func (r *PostgresRepository) Search(ctx context.Context, filter domain.Filter, page, limit int) (domain.SearchResult, error) {
	page = max(page, 1)
	limit = max(limit, 1)

	countQ, rowsQ := searchQueries(filter, page, limit)
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("build count: %w", err)
	}
	rowsSQL, rowsArgs, err := rowsQ.ToSql()
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("build search: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var result domain.SearchResult
	if err := tx.QueryRowContext(ctx, countSQL, countArgs...).Scan(&result.Total); err != nil {
		return domain.SearchResult{}, fmt.Errorf("count items: %w", err)
	}

	rows, err := tx.QueryContext(ctx, rowsSQL, rowsArgs...)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	result.Items = make([]domain.CatalogItem, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return domain.SearchResult{}, fmt.Errorf("scan item: %w", err)
		}
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.SearchResult{}, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// SourceStats reports per-source counts and the latest refresh time.
func (r *PostgresRepository) SourceStats(ctx context.Context) ([]domain.SourceStats, error) {
	query, args, err := psql.Select("source_name", "COUNT(*)", "MAX(updated_at)").
		From("coins").
		GroupBy("source_name").
		OrderBy("source_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make([]domain.SourceStats, 0)
	for rows.Next() {
		var s domain.SourceStats
		if err := rows.Scan(&s.SourceName, &s.Count, &s.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return stats, nil
}

// LogRunOutcome appends one outcome row outside any catalog transaction.
func (r *PostgresRepository) LogRunOutcome(ctx context.Context, outcome domain.RunOutcome) error {
	recordedAt := outcome.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = r.now().UTC()
	}

	query, args, err := psql.Insert("scrape_log").
		Columns("run_id", "source_name", "status", "coins_scraped", "error_message", "scraped_at").
		Values(outcome.RunID, outcome.SourceName, string(outcome.Status), outcome.ItemCount, nullable(outcome.Error), recordedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build outcome insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns the most recent outcomes, newest first.
func (r *PostgresRepository) ListOutcomes(ctx context.Context, limit int) ([]domain.RunOutcome, error) {
	query, args, err := psql.Select(outcomeColumns...).
		From("scrape_log").
		OrderBy("scraped_at DESC", "id DESC").
		Limit(uint64(max(limit, 1))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build outcomes: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make([]domain.RunOutcome, 0)
	for rows.Next() {
		var (
			o      domain.RunOutcome
			status string
			msg    sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.RunID, &o.SourceName, &status, &o.ItemCount, &msg, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = domain.OutcomeStatus(status)
		o.Error = msg.String
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return outcomes, nil
}

// Health checks that the database is reachable.
func (r *PostgresRepository) Health(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database is not configured")
	}
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.CatalogItem, error) {
	var (
		item                             domain.CatalogItem
		year                             sql.NullInt64
		mint, grade, certification, imgs sql.NullString
		availability                     string
	)
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.Price,
		&item.Currency,
		&year,
		&mint,
		&grade,
		&certification,
		&item.Category,
		&imgs,
		&item.SourceURL,
		&item.SourceName,
		&availability,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	if year.Valid {
		y := int(year.Int64)
		item.Year = &y
	}
	item.Mint = mint.String
	item.Grade = grade.String
	item.Certification = certification.String
	item.ImageURL = imgs.String
	item.Availability = domain.Availability(availability)
	return item, nil
}
