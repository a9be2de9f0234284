package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	for _, key := range []string{portEnv, databaseURLEnv, requestDelayEnv, maxRetriesEnv, scrapeIntervalEnv} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Server.Addr != ":3001" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Scraper.RequestDelay != 2*time.Second || cfg.Scraper.MaxRetries != 3 {
		t.Fatalf("unexpected scraper defaults %+v", cfg.Scraper)
	}
	if cfg.Scheduler.Interval() != 6*time.Hour {
		t.Fatalf("unexpected interval %s", cfg.Scheduler.Interval())
	}
	if cfg.Storage.BatchSize != 100 || cfg.Search.DefaultLimit != 24 || cfg.Search.ExportLimit != 1000 {
		t.Fatalf("unexpected limits %+v %+v", cfg.Storage, cfg.Search)
	}
	if len(cfg.Sites) != 3 {
		t.Fatalf("expected three built-in sites, got %d", len(cfg.Sites))
	}
}

func TestLoadYAMLKeepsUnsetDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
server:
  addr: ":8080"
scraper:
  requestDelay: 500ms
sites:
  - name: Local Coins
    baseUrl: https://coins.example.com
    categories:
      - name: gold
        url: /gold
    selectors:
      item: .card
      title: .title
      price: .price
      link: a
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(portEnv, "")
	t.Setenv(requestDelayEnv, "")
	t.Setenv(maxRetriesEnv, "")

	cfg := Load()

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Scraper.RequestDelay != 500*time.Millisecond {
		t.Fatalf("unexpected delay %s", cfg.Scraper.RequestDelay)
	}
	if cfg.Scraper.MaxRetries != 3 {
		t.Fatalf("unset keys must keep defaults, got retries %d", cfg.Scraper.MaxRetries)
	}
	if len(cfg.Sites) != 1 || cfg.Sites[0].Scanner != storefrontScanner {
		t.Fatalf("unexpected sites %+v", cfg.Sites)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(portEnv, "4000")
	t.Setenv(databaseURLEnv, "postgres://coins@localhost/coins")
	t.Setenv(requestDelayEnv, "250")
	t.Setenv(maxRetriesEnv, "5")
	t.Setenv(scrapeIntervalEnv, "0")
	t.Setenv(redisURLEnv, "redis://localhost:6379/0")

	cfg := Load()

	if cfg.Server.Addr != ":4000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Database.DSN != "postgres://coins@localhost/coins" {
		t.Fatalf("unexpected dsn %q", cfg.Database.DSN)
	}
	if cfg.Scraper.RequestDelay != 250*time.Millisecond || cfg.Scraper.MaxRetries != 5 {
		t.Fatalf("unexpected scraper config %+v", cfg.Scraper)
	}
	if cfg.Scheduler.IntervalHours != 6 {
		t.Fatalf("invalid interval must revert to default, got %d", cfg.Scheduler.IntervalHours)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected redis url %q", cfg.Redis.URL)
	}
}
