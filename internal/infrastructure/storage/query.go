package storage

import (
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"CoinAggregator/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var itemColumns = []string{
	"id", "title", "description", "price", "currency", "year", "mint", "grade",
	"certification", "coin_type", "image_url", "source_url", "source_name",
	"availability", "created_at", "updated_at",
}

var outcomeColumns = []string{
	"id", "run_id", "source_name", "status", "coins_scraped", "error_message", "scraped_at",
}

const upsertConflict = `ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	price = EXCLUDED.price,
	currency = EXCLUDED.currency,
	year = EXCLUDED.year,
	mint = EXCLUDED.mint,
	grade = EXCLUDED.grade,
	certification = EXCLUDED.certification,
	coin_type = EXCLUDED.coin_type,
	image_url = EXCLUDED.image_url,
	source_url = EXCLUDED.source_url,
	source_name = EXCLUDED.source_name,
	availability = EXCLUDED.availability,
	updated_at = EXCLUDED.updated_at`

// upsertQuery builds a multi-row insert for one chunk. Ids must be unique
// within the chunk; created_at only applies to rows that did not exist.
func upsertQuery(items []domain.CatalogItem, now time.Time) (string, []any, error) {
	q := psql.Insert("coins").Columns(itemColumns...)
	for _, item := range items {
		var year any
		if item.Year != nil {
			year = *item.Year
		}
		q = q.Values(
			item.ID,
			item.Title,
			item.Description,
			item.Price,
			item.Currency,
			year,
			nullable(item.Mint),
			nullable(item.Grade),
			nullable(item.Certification),
			item.Category,
			nullable(item.ImageURL),
			item.SourceURL,
			item.SourceName,
			string(item.Availability),
			now,
			now,
		)
	}
	return q.Suffix(upsertConflict).ToSql()
}

// searchQueries returns the count query and the page query for one search.
func searchQueries(f domain.Filter, page, limit int) (sq.SelectBuilder, sq.SelectBuilder) {
	count := applyFilter(psql.Select("COUNT(*)").From("coins"), f)
	rows := applyFilter(psql.Select(itemColumns...).From("coins"), f).
		OrderBy("created_at DESC", "seq ASC").
		Limit(uint64(limit)).
		Offset(uint64(pageOffset(page, limit)))
	return count, rows
}

// pageOffset returns the number of rows before page. Pages below 1 count as 1
// and offsets that would overflow saturate at math.MaxInt.
func pageOffset(page, limit int) int {
	if page <= 1 || limit <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

func applyFilter(b sq.SelectBuilder, f domain.Filter) sq.SelectBuilder {
	if len(f.IDs) > 0 {
		b = b.Where(sq.Expr("id = ANY(?)", pq.Array(f.IDs)))
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		b = b.Where(sq.Expr("(title ILIKE ? OR description ILIKE ?)", pattern, pattern))
	}
	if f.MinPrice != nil {
		b = b.Where(sq.GtOrEq{"price": *f.MinPrice})
	}
	if f.MaxPrice != nil {
		b = b.Where(sq.LtOrEq{"price": *f.MaxPrice})
	}
	if f.MinYear != nil {
		b = b.Where(sq.GtOrEq{"year": *f.MinYear})
	}
	if f.MaxYear != nil {
		b = b.Where(sq.LtOrEq{"year": *f.MaxYear})
	}
	if f.Grade != "" {
		b = b.Where(sq.Eq{"grade": f.Grade})
	}
	if f.Certification != "" {
		b = b.Where(sq.Eq{"certification": f.Certification})
	}
	if f.Category != "" {
		b = b.Where(sq.Eq{"coin_type": f.Category})
	}
	if f.Source != "" {
		b = b.Where(sq.Eq{"source_name": f.Source})
	}
	if f.Availability != "" {
		b = b.Where(sq.Eq{"availability": f.Availability})
	}
	return b
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// dedupeByID keeps the last occurrence of each id, in first-seen order.
func dedupeByID(items []domain.CatalogItem) []domain.CatalogItem {
	index := make(map[string]int, len(items))
	out := make([]domain.CatalogItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ID]; ok {
			out[i] = item
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

func chunk(items []domain.CatalogItem, size int) [][]domain.CatalogItem {
	if size <= 0 {
		size = len(items)
	}
	var out [][]domain.CatalogItem
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
