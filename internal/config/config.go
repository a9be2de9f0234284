package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "COIN_AGGREGATOR_CONFIG"
	portEnv            = "PORT"
	frontendURLEnv     = "FRONTEND_URL"
	databaseURLEnv     = "DATABASE_URL"
	logLevelEnv        = "LOG_LEVEL"
	logFormatEnv       = "LOG_FORMAT"
	requestDelayEnv    = "REQUEST_DELAY_MS"
	maxRetriesEnv      = "MAX_RETRIES"
	scrapeIntervalEnv  = "SCRAPE_INTERVAL_HOURS"
	redisURLEnv        = "REDIS_URL"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	storefrontScanner  = "storefront"
	defaultBatchSize   = 100
	defaultSearchLimit = 24
)

// Config holds high-level settings required across the application.
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Logging       LoggingConfig      `yaml:"logging"`
	Scraper       ScraperConfig      `yaml:"scraper"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Storage       StorageConfig      `yaml:"storage"`
	Search        SearchConfig       `yaml:"search"`
	Redis         RedisConfig        `yaml:"redis"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// ServerConfig describes the public HTTP listener.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	AllowedOrigin string `yaml:"allowedOrigin"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects
// the in-memory catalog.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig sets the slog level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ScraperConfig controls the shared fetch engine.
type ScraperConfig struct {
	RequestDelay  time.Duration `yaml:"requestDelay"`
	MaxRetries    int           `yaml:"maxRetries"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"userAgent"`
	RespectRobots bool          `yaml:"respectRobots"`
}

// SchedulerConfig defines when aggregation and retention run.
type SchedulerConfig struct {
	IntervalHours int           `yaml:"intervalHours"`
	InitialDelay  time.Duration `yaml:"initialDelay"`
	RunOnStart    bool          `yaml:"runOnStart"`
	RetentionDays int           `yaml:"retentionDays"`
}

// Interval converts IntervalHours into a duration.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

// StorageConfig tunes the persistence layer.
type StorageConfig struct {
	BatchSize int `yaml:"batchSize"`
}

// SearchConfig bounds the query endpoints.
type SearchConfig struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxLimit     int `yaml:"maxLimit"`
	ExportLimit  int `yaml:"exportLimit"`
	SimilarLimit int `yaml:"similarLimit"`
}

// RedisConfig enables API rate limiting when URL is set.
type RedisConfig struct {
	URL               string `yaml:"url"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send run summaries.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SiteConfig describes one retail source and the page structure its adapter reads.
type SiteConfig struct {
	Name                string            `yaml:"name"`
	Scanner             string            `yaml:"scanner"`
	BaseURL             string            `yaml:"baseUrl"`
	Currency            string            `yaml:"currency"`
	DefaultAvailability string            `yaml:"defaultAvailability"`
	Categories          []CategoryConfig  `yaml:"categories"`
	Query               map[string]string `yaml:"query"`
	Selectors           SelectorConfig    `yaml:"selectors"`
}

// CategoryConfig holds a category page path (or absolute URL) to crawl.
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SelectorConfig lists the CSS selectors used to read one listing card.
type SelectorConfig struct {
	Item         string   `yaml:"item"`
	Title        string   `yaml:"title"`
	Price        string   `yaml:"price"`
	Link         string   `yaml:"link"`
	Image        string   `yaml:"image"`
	ImageAttrs   []string `yaml:"imageAttrs"`
	Description  string   `yaml:"description"`
	Availability string   `yaml:"availability"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if fileCfg, err := parse(raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = fileCfg
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	return cfg
}

// Defaults returns the built-in configuration without consulting files or
// the environment.
func Defaults() Config {
	return defaultConfig()
}

// parse decodes raw YAML over the defaults so omitted keys keep their values.
func parse(raw []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(portEnv); v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}

	if v := os.Getenv(frontendURLEnv); v != "" {
		c.Server.AllowedOrigin = v
	}

	if v := os.Getenv(databaseURLEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v, ok := envInt(requestDelayEnv); ok {
		c.Scraper.RequestDelay = time.Duration(v) * time.Millisecond
	}

	if v, ok := envInt(maxRetriesEnv); ok {
		c.Scraper.MaxRetries = v
	}

	if v, ok := envInt(scrapeIntervalEnv); ok {
		c.Scheduler.IntervalHours = v
	}

	if v := os.Getenv(redisURLEnv); v != "" {
		c.Redis.URL = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) normalize() {
	if c.Scraper.MaxRetries < 0 {
		c.Scraper.MaxRetries = 0
	}
	if c.Scraper.RequestDelay < 0 {
		c.Scraper.RequestDelay = 0
	}
	if c.Scheduler.IntervalHours <= 0 {
		log.Printf("config: invalid scrape interval %d, reverting to 6h", c.Scheduler.IntervalHours)
		c.Scheduler.IntervalHours = 6
	}
	if c.Storage.BatchSize <= 0 {
		c.Storage.BatchSize = defaultBatchSize
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = defaultSearchLimit
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		c.Search.MaxLimit = c.Search.DefaultLimit
	}
	for i := range c.Sites {
		if c.Sites[i].Scanner == "" {
			c.Sites[i].Scanner = storefrontScanner
		}
	}
	if len(c.Sites) == 0 {
		c.Sites = defaultConfig().Sites
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("config: ignoring non-numeric %s=%q", key, raw)
		return 0, false
	}
	return v, true
}

func defaultConfig() Config {
	return Config{
		Server:   ServerConfig{Addr: ":3001", AllowedOrigin: "http://localhost:3000"},
		Database: DatabaseConfig{DSN: ""},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Scraper: ScraperConfig{
			RequestDelay:  2 * time.Second,
			MaxRetries:    3,
			Timeout:       30 * time.Second,
			RespectRobots: true,
		},
		Scheduler: SchedulerConfig{
			IntervalHours: 6,
			InitialDelay:  5 * time.Second,
			RunOnStart:    true,
			RetentionDays: 30,
		},
		Storage: StorageConfig{BatchSize: defaultBatchSize},
		Search: SearchConfig{
			DefaultLimit: defaultSearchLimit,
			MaxLimit:     100,
			ExportLimit:  1000,
			SimilarLimit: 20,
		},
		Redis: RedisConfig{RequestsPerMinute: 100},
		Sites: []SiteConfig{
			{
				Name:     "APMEX",
				Scanner:  storefrontScanner,
				BaseURL:  "https://www.apmex.com",
				Currency: "USD",
				Categories: []CategoryConfig{
					{Name: "gold-eagles", URL: "/c/gold-eagle-coins"},
					{Name: "silver-eagles", URL: "/c/silver-eagle-coins"},
					{Name: "certified", URL: "/c/certified-coins"},
				},
				Query: map[string]string{"p": "1", "product_list_limit": "48"},
				Selectors: SelectorConfig{
					Item:  ".product-item",
					Title: ".product-item-link",
					Price: ".price",
					Link:  ".product-item-link",
					Image: ".product-image-photo",
				},
			},
			{
				Name:     "JM Bullion",
				Scanner:  storefrontScanner,
				BaseURL:  "https://www.jmbullion.com",
				Currency: "USD",
				Categories: []CategoryConfig{
					{Name: "gold-eagles", URL: "/gold/gold-eagle-coins/"},
					{Name: "silver-eagles", URL: "/silver/american-silver-eagle-coins/"},
					{Name: "certified", URL: "/certified-coins/"},
				},
				Selectors: SelectorConfig{
					Item:       ".product-item, .product",
					Title:      ".product-name, .product-item-name",
					Price:      ".price, .product-price",
					Link:       "a.product-item-link, a.product-link",
					Image:      "img.product-image-photo, img",
					ImageAttrs: []string{"src", "data-src"},
				},
			},
			{
				Name:     "Monument Metals",
				Scanner:  storefrontScanner,
				BaseURL:  "https://monumentmetals.com",
				Currency: "USD",
				Categories: []CategoryConfig{
					{Name: "gold-eagles", URL: "/gold/american-gold-eagles.html"},
					{Name: "silver-eagles", URL: "/silver/american-silver-eagles.html"},
					{Name: "certified", URL: "/certified-coins.html"},
				},
				Selectors: SelectorConfig{
					Item:  ".product-item",
					Title: ".product-item-name a",
					Price: ".price",
					Link:  ".product-item-name a",
					Image: ".product-image-photo",
				},
			},
		},
	}
}
