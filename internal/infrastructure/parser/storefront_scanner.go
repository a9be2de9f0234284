package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"CoinAggregator/internal/config"
	"CoinAggregator/internal/domain"
	"CoinAggregator/internal/heuristics"
	"CoinAggregator/internal/infrastructure/fetch"
	"CoinAggregator/internal/scanner"
)

// PageFetcher is the part of the fetch engine a scanner needs.
type PageFetcher interface {
	Throttle(ctx context.Context) error
	Document(ctx context.Context, req fetch.Request) (*goquery.Document, error)
}

// StorefrontScanner reads product listing pages of a retail store using the
// CSS selectors configured for that site.
type StorefrontScanner struct {
	site         config.SiteConfig
	base         *url.URL
	fetcher      PageFetcher
	logger       *slog.Logger
	currency     string
	availability domain.Availability
	imageAttrs   []string
}

var _ scanner.Scanner = (*StorefrontScanner)(nil)

// NewStorefrontScanner validates the site profile and binds it to a fetcher.
func NewStorefrontScanner(site config.SiteConfig, fetcher PageFetcher, logger *slog.Logger) (*StorefrontScanner, error) {
	if fetcher == nil {
		return nil, errors.New("page fetcher is required")
	}
	if strings.TrimSpace(site.Name) == "" {
		return nil, errors.New("site name is required")
	}
	base, err := url.Parse(site.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("site %s: invalid base url %q", site.Name, site.BaseURL)
	}
	if site.Selectors.Item == "" || site.Selectors.Title == "" || site.Selectors.Price == "" || site.Selectors.Link == "" {
		return nil, fmt.Errorf("site %s: item, title, price and link selectors are required", site.Name)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	currency := strings.TrimSpace(site.Currency)
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	availability := domain.AvailabilityInStock
	if site.DefaultAvailability != "" {
		if parsed, ok := domain.ParseAvailability(site.DefaultAvailability); ok {
			availability = parsed
		}
	}
	attrs := site.Selectors.ImageAttrs
	if len(attrs) == 0 {
		attrs = []string{"src"}
	}

	return &StorefrontScanner{
		site:         site,
		base:         base,
		fetcher:      fetcher,
		logger:       logger.With("component", "scanner", "source", site.Name),
		currency:     currency,
		availability: availability,
		imageAttrs:   attrs,
	}, nil
}

// Name identifies the source; it becomes sourceName on every item.
func (s *StorefrontScanner) Name() string {
	return s.site.Name
}

// Scan walks every configured category page. A category that cannot be
// fetched is reported in Result.Errors and the remaining categories are still
// scanned. Only cancellation aborts the scan.
func (s *StorefrontScanner) Scan(ctx context.Context) (scanner.Result, error) {
	var result scanner.Result
	if len(s.site.Categories) == 0 {
		return result, fmt.Errorf("no categories configured for site %s", s.site.Name)
	}

	for _, cat := range s.site.Categories {
		if err := s.fetcher.Throttle(ctx); err != nil {
			return result, fmt.Errorf("scan %s: %w", s.site.Name, err)
		}

		pageURL, err := s.categoryURL(cat.URL)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s category %s: %v", s.site.Name, cat.Name, err))
			continue
		}

		s.logger.Info("scraping category", "category", cat.Name, "url", pageURL)
		doc, err := s.fetcher.Document(ctx, fetch.Request{
			Source:  s.site.Name,
			BaseURL: s.base.String(),
			URL:     pageURL,
		})
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("scan %s: %w", s.site.Name, ctx.Err())
			}
			s.logger.Error("category failed", "category", cat.Name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s category %s: %v", s.site.Name, cat.Name, err))
			continue
		}

		items := s.extractItems(doc, cat)
		s.logger.Info("category scraped", "category", cat.Name, "items", len(items))
		result.Items = append(result.Items, items...)
	}

	return result, nil
}

func (s *StorefrontScanner) categoryURL(raw string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid category url %q: %w", raw, err)
	}
	u := s.base.ResolveReference(ref)
	if len(s.site.Query) > 0 {
		q := u.Query()
		for key, value := range s.site.Query {
			q.Set(key, value)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *StorefrontScanner) extractItems(doc *goquery.Document, cat config.CategoryConfig) []domain.CatalogItem {
	var items []domain.CatalogItem
	doc.Find(s.site.Selectors.Item).Each(func(i int, sel *goquery.Selection) {
		item, err := s.parseItem(sel, cat)
		if err != nil {
			s.logger.Debug("skip listing", "category", cat.Name, "index", i, "reason", err)
			return
		}
		items = append(items, item)
	})
	return items
}

func (s *StorefrontScanner) parseItem(sel *goquery.Selection, cat config.CategoryConfig) (domain.CatalogItem, error) {
	selectors := s.site.Selectors

	title := selectText(sel, selectors.Title)
	if title == "" {
		return domain.CatalogItem{}, errors.New("missing title")
	}

	price := heuristics.ExtractPrice(selectText(sel, selectors.Price))
	if price <= 0 {
		return domain.CatalogItem{}, errors.New("missing price")
	}

	href, _ := sel.Find(selectors.Link).First().Attr("href")
	link := s.resolve(href)
	if link == "" {
		return domain.CatalogItem{}, errors.New("missing link")
	}

	description := title
	if selectors.Description != "" {
		if text := selectText(sel, selectors.Description); text != "" {
			description = text
		}
	}

	availability := s.availability
	if selectors.Availability != "" {
		if inferred := heuristics.InferAvailability(selectText(sel, selectors.Availability)); inferred != domain.AvailabilityUnknown {
			availability = inferred
		}
	}

	text := title + " " + description
	return domain.CatalogItem{
		ID:            heuristics.ItemID(s.site.Name, link),
		Title:         title,
		Description:   description,
		Price:         price,
		Currency:      s.currency,
		Year:          heuristics.YearPtr(text),
		Mint:          heuristics.ExtractMint(text),
		Grade:         heuristics.ExtractGrade(text),
		Certification: heuristics.ExtractCertification(text),
		Category:      heuristics.InferCategory(title, cat.Name, cat.URL),
		ImageURL:      s.imageURL(sel),
		SourceURL:     link,
		SourceName:    s.site.Name,
		Availability:  availability,
	}, nil
}

func (s *StorefrontScanner) imageURL(sel *goquery.Selection) string {
	if s.site.Selectors.Image == "" {
		return ""
	}
	img := sel.Find(s.site.Selectors.Image).First()
	for _, attr := range s.imageAttrs {
		if value, ok := img.Attr(attr); ok && strings.TrimSpace(value) != "" {
			return s.resolve(value)
		}
	}
	return ""
}

// resolve turns a possibly relative href into an absolute URL on the site.
func (s *StorefrontScanner) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return s.base.ResolveReference(ref).String()
}

func selectText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(sel.Find(selector).First().Text()), " ")
}
