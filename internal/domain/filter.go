package domain

import "strings"

// Filter holds the optional, conjunctive catalog search criteria.
// Nil pointers and empty strings mean "no constraint".
type Filter struct {
	Search        string
	MinPrice      *float64
	MaxPrice      *float64
	MinYear       *int
	MaxYear       *int
	Grade         string
	Certification string
	Category      string
	Source        string
	Availability  string
	IDs           []string
}

// Matches evaluates the filter against a single item with the same semantics
// the SQL builder produces: a missing year never satisfies a year bound.
func (f Filter) Matches(item CatalogItem) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, item.ID) {
		return false
	}

	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(item.Title), needle) &&
			!strings.Contains(strings.ToLower(item.Description), needle) {
			return false
		}
	}

	if f.MinPrice != nil && item.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && item.Price > *f.MaxPrice {
		return false
	}

	if f.MinYear != nil && (item.Year == nil || *item.Year < *f.MinYear) {
		return false
	}
	if f.MaxYear != nil && (item.Year == nil || *item.Year > *f.MaxYear) {
		return false
	}

	if f.Grade != "" && item.Grade != f.Grade {
		return false
	}
	if f.Certification != "" && item.Certification != f.Certification {
		return false
	}
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.Source != "" && item.SourceName != f.Source {
		return false
	}
	if f.Availability != "" && string(item.Availability) != f.Availability {
		return false
	}

	return true
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
