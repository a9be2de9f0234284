package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by catalog lookups for unknown ids.
var ErrNotFound = errors.New("catalog item not found")

// DefaultCurrency applies when a source does not state one.
const DefaultCurrency = "USD"

// Availability describes the stock state advertised by a source.
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityPreOrder   Availability = "pre_order"
	AvailabilityUnknown    Availability = "unknown"
)

// ParseAvailability returns the availability for value and whether it is one
// of the known states.
func ParseAvailability(value string) (Availability, bool) {
	switch a := Availability(strings.TrimSpace(value)); a {
	case AvailabilityInStock, AvailabilityOutOfStock, AvailabilityPreOrder, AvailabilityUnknown:
		return a, true
	default:
		return AvailabilityUnknown, false
	}
}

// Coin categories, keyed by material.
const (
	CategoryGold     = "Gold"
	CategorySilver   = "Silver"
	CategoryPlatinum = "Platinum"
	CategoryCopper   = "Copper"
	CategoryOther    = "Other"
)

// CatalogItem is a single listing aggregated from a retail source.
type CatalogItem struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Price         float64      `json:"price"`
	Currency      string       `json:"currency"`
	Year          *int         `json:"year,omitempty"`
	Mint          string       `json:"mint,omitempty"`
	Grade         string       `json:"grade,omitempty"`
	Certification string       `json:"certification,omitempty"`
	Category      string       `json:"category"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	SourceURL     string       `json:"sourceUrl"`
	SourceName    string       `json:"sourceName"`
	Availability  Availability `json:"availability"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Acceptable reports whether the item carries the fields every persisted
// record must have: a title, a source URL and a positive price.
func (c CatalogItem) Acceptable() bool {
	return strings.TrimSpace(c.Title) != "" &&
		strings.TrimSpace(c.SourceURL) != "" &&
		c.Price > 0
}

// AcceptedItems drops the candidates that fail Acceptable.
func AcceptedItems(items []CatalogItem) []CatalogItem {
	accepted := make([]CatalogItem, 0, len(items))
	for _, item := range items {
		if item.Acceptable() {
			accepted = append(accepted, item)
		}
	}
	return accepted
}

// OutcomeStatus is the result of one source within one aggregation run.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
)

// RunOutcome is the append-only audit record for one source in one run.
type RunOutcome struct {
	ID         int64         `json:"id"`
	RunID      string        `json:"runId"`
	SourceName string        `json:"sourceName"`
	Status     OutcomeStatus `json:"status"`
	ItemCount  int           `json:"itemCount"`
	Error      string        `json:"error,omitempty"`
	RecordedAt time.Time     `json:"recordedAt"`
}

// SourceStats summarises what the catalog currently holds for one source.
type SourceStats struct {
	SourceName  string    `json:"sourceName"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// AggregationResult is returned by a single aggregation run.
type AggregationResult struct {
	Success    bool     `json:"success"`
	TotalItems int      `json:"totalCoins"`
	Errors     []string `json:"errors"`
}

// SearchResult is one page of a filtered catalog query.
type SearchResult struct {
	Items []CatalogItem
	Total int
}
