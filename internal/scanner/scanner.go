package scanner

import (
	"context"
	"fmt"

	"CoinAggregator/internal/domain"
)

// Result carries the candidates produced by one scan together with the
// non-fatal errors met on the way (for example a category page that could not
// be fetched).
type Result struct {
	Items  []domain.CatalogItem
	Errors []string
}

// Scanner is the contract every retail source adapter satisfies.
// Scan never fails because of a single malformed listing; those are skipped.
// A returned error means the whole source could not be scanned.
type Scanner interface {
	Name() string
	Scan(ctx context.Context) (Result, error)
}

// Registry keeps scanners in registration order, which is the order an
// aggregation run visits them.
type Registry struct {
	scanners []Scanner
	byName   map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]Scanner{}}
}

// Register appends a scanner; names must be unique.
func (r *Registry) Register(scanner Scanner) error {
	if r.byName == nil {
		r.byName = map[string]Scanner{}
	}
	name := scanner.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("scanner %s is already registered", name)
	}
	r.byName[name] = scanner
	r.scanners = append(r.scanners, scanner)
	return nil
}

// All returns the registered scanners in registration order.
func (r *Registry) All() []Scanner {
	out := make([]Scanner, len(r.scanners))
	copy(out, r.scanners)
	return out
}
