package httpapi

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"CoinAggregator/internal/domain"
)

// parseFilter reads catalog filters from query parameters. Values that do not
// parse are ignored rather than rejected.
func parseFilter(q url.Values) domain.Filter {
	f := domain.Filter{
		Search:        strings.TrimSpace(q.Get("search")),
		MinPrice:      floatParam(q, "minPrice"),
		MaxPrice:      floatParam(q, "maxPrice"),
		MinYear:       intParam(q, "minYear"),
		MaxYear:       intParam(q, "maxYear"),
		Grade:         strings.TrimSpace(q.Get("grade")),
		Certification: strings.TrimSpace(q.Get("certification")),
		Category:      strings.TrimSpace(q.Get("category")),
		Source:        strings.TrimSpace(q.Get("source")),
	}
	if f.Category == "" {
		f.Category = strings.TrimSpace(q.Get("coinType"))
	}
	if raw := q.Get("availability"); raw != "" {
		if a, ok := domain.ParseAvailability(raw); ok {
			f.Availability = string(a)
		}
	}
	if raw := q.Get("ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				f.IDs = append(f.IDs, id)
			}
		}
	}
	return f
}

// parsePaging returns zero for missing or invalid values; the catalog applies
// its defaults.
func parsePaging(q url.Values) (page, limit int) {
	if v := intParam(q, "page"); v != nil {
		page = *v
	}
	if v := intParam(q, "limit"); v != nil {
		limit = *v
	}
	return page, limit
}

func floatParam(q url.Values, key string) *float64 {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func intParam(q url.Values, key string) *int {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}
