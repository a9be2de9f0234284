package parser

import (
	"fmt"
	"log/slog"

	"CoinAggregator/internal/config"
	"CoinAggregator/internal/scanner"
)

const storefrontKind = "storefront"

// BuildRegistry creates one scanner per configured site, preserving the
// configured order.
func BuildRegistry(sites []config.SiteConfig, fetcher PageFetcher, logger *slog.Logger) (*scanner.Registry, error) {
	reg := scanner.NewRegistry()
	for _, site := range sites {
		var (
			s   scanner.Scanner
			err error
		)
		switch site.Scanner {
		case storefrontKind, "":
			s, err = NewStorefrontScanner(site, fetcher, logger)
		default:
			err = fmt.Errorf("site %s: unknown scanner %q", site.Name, site.Scanner)
		}
		if err != nil {
			return nil, err
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
