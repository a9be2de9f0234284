// Package heuristics extracts structured coin attributes from free listing text.
//
// Every function is pure and independently fallible: text that does not
// clearly carry an attribute yields the zero value rather than a guess.
package heuristics

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"CoinAggregator/internal/domain"
)

var (
	symbolPriceExpr = regexp.MustCompile(`[$€£]\s*(\d[\d,]*(?:\.\d+)?)`)
	barePriceExpr   = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)`)
	yearExpr        = regexp.MustCompile(`\b(1[7-9]\d{2}|20[0-2]\d)\b`)
	gradeExpr       = regexp.MustCompile(`(?i)\b(MS|PR|PF|SP|AU|XF|VF|VG|AG|FA|PO|F|G)[\s-]?(\d{1,2})\b`)
	mintSuffixExpr  = regexp.MustCompile(`(?i)\b\d{4}[\s-]?(CC|[PDSWO])\b`)
	groupingExpr    = regexp.MustCompile(`^\d{1,3}(?:,\d{3})*(?:\.\d+)?$`)
)

var mintCities = []struct {
	city string
	code string
}{
	{"san francisco", "S"},
	{"philadelphia", "P"},
	{"denver", "D"},
	{"west point", "W"},
	{"carson city", "CC"},
	{"new orleans", "O"},
}

// Certifying authorities in priority order.
var certifiers = []string{"PCGS", "NGC", "ANACS", "ICG"}

var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"gold", domain.CategoryGold},
	{"silver", domain.CategorySilver},
	{"platinum", domain.CategoryPlatinum},
	{"copper", domain.CategoryCopper},
}

var itemNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("coinaggregator/catalog-item"))

// ExtractPrice returns the first currency amount found in text. A token led by
// a currency symbol wins over a bare number. Malformed or absent amounts yield 0.
func ExtractPrice(text string) float64 {
	token := ""
	if m := symbolPriceExpr.FindStringSubmatch(text); m != nil {
		token = m[1]
	} else if m := barePriceExpr.FindStringSubmatch(text); m != nil {
		token = m[1]
	}
	if token == "" {
		return 0
	}

	if strings.Contains(token, ",") && !groupingExpr.MatchString(token) {
		return 0
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", ""), 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// ExtractYear returns the first four-digit year in [1700, 2029].
func ExtractYear(text string) (int, bool) {
	m := yearExpr.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

// YearPtr is ExtractYear shaped for optional struct fields.
func YearPtr(text string) *int {
	year, ok := ExtractYear(text)
	if !ok {
		return nil
	}
	return &year
}

// ExtractGrade returns a grading token such as "MS69" or "F12", upper-cased with
// separators removed. A scale code without a numeric grade is not a grade, so
// metal symbols like "Ag" and "Au" yield "".
func ExtractGrade(text string) string {
	m := gradeExpr.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1]) + m[2]
}

// ExtractMint returns the mint mark named in text, checking full city names
// before a letter that directly follows a four-digit year.
func ExtractMint(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range mintCities {
		if strings.Contains(lower, entry.city) {
			return entry.code
		}
	}

	if m := mintSuffixExpr.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// ExtractCertification returns the first grading service mentioned in text.
func ExtractCertification(text string) string {
	upper := strings.ToUpper(text)
	for _, name := range certifiers {
		if strings.Contains(upper, name) {
			return name
		}
	}
	return ""
}

// InferCategory checks each material keyword, in order, against all texts
// (typically the title and the category path).
func InferCategory(texts ...string) string {
	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}

	for _, entry := range categoryKeywords {
		for _, t := range lowered {
			if strings.Contains(t, entry.keyword) {
				return entry.category
			}
		}
	}
	return domain.CategoryOther
}

// InferAvailability maps stock wording to an availability state.
func InferAvailability(text string) domain.Availability {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "out of stock"), strings.Contains(lower, "sold out"), strings.Contains(lower, "unavailable"):
		return domain.AvailabilityOutOfStock
	case strings.Contains(lower, "pre-order"), strings.Contains(lower, "preorder"), strings.Contains(lower, "presale"):
		return domain.AvailabilityPreOrder
	case strings.Contains(lower, "in stock"), strings.Contains(lower, "add to cart"):
		return domain.AvailabilityInStock
	default:
		return domain.AvailabilityUnknown
	}
}

// ItemID derives the stable catalog id for a listing. The same source and URL
// always produce the same id; different sources never collide.
func ItemID(sourceName, sourceURL string) string {
	return uuid.NewSHA1(itemNamespace, []byte(sourceName+"|"+sourceURL)).String()
}
