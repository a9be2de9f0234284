package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"CoinAggregator/internal/config"
	"CoinAggregator/internal/infrastructure/fetch"
	"CoinAggregator/internal/infrastructure/parser"
	"CoinAggregator/internal/infrastructure/ratelimit"
	"CoinAggregator/internal/infrastructure/scheduler"
	"CoinAggregator/internal/infrastructure/storage"
	"CoinAggregator/internal/infrastructure/telegram"
	"CoinAggregator/internal/logging"
	"CoinAggregator/internal/metrics"
	"CoinAggregator/internal/ports"
	"CoinAggregator/internal/transport/httpapi"
	"CoinAggregator/internal/usecase"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *sql.DB
	redis      *redis.Client
	aggregator *usecase.Aggregator
	scheduler  *usecase.Scheduler
	server     *http.Server
}

// New builds the application. The only fatal precondition is an unreachable
// database when one is configured.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger.With("component", "app")}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	engine := fetch.New(nil, fetch.Config{
		Delay:         cfg.Scraper.RequestDelay,
		MaxRetries:    cfg.Scraper.MaxRetries,
		Timeout:       cfg.Scraper.Timeout,
		UserAgent:     cfg.Scraper.UserAgent,
		RespectRobots: cfg.Scraper.RespectRobots,
	}, baseLogger.With("component", "fetch"), m)

	scanners, err := parser.BuildRegistry(cfg.Sites, engine, baseLogger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build scanners: %w", err)
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	a.aggregator = usecase.NewAggregator(usecase.AggregatorDeps{
		Scanners:   scanners.All(),
		Repository: store,
		Outcomes:   store,
		Notifier:   notifier,
		Metrics:    m,
		Logger:     baseLogger,
	})

	a.scheduler = usecase.NewScheduler(
		scheduler.NewIntervalScheduler(cfg.Scheduler.Interval(), cfg.Scheduler.InitialDelay, cfg.Scheduler.RunOnStart),
		a.aggregator,
		cfg.Scheduler.RetentionDays,
		baseLogger,
	)

	catalog := usecase.NewCatalog(store, store, usecase.CatalogLimits{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		ExportLimit:  cfg.Search.ExportLimit,
		SimilarLimit: cfg.Search.SimilarLimit,
	})

	handler := httpapi.New(ctx, catalog, a.aggregator, baseLogger)
	router := httpapi.NewRouter(handler, httpapi.RouterOptions{
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Limiter:       a.rateLimiter(ctx),
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Logger:        baseLogger,
	})
	a.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.logger.Info("application configured",
		"sources", len(scanners.All()),
		"postgres", a.db != nil,
		"rate_limit", a.redis != nil,
		"telegram", notifier != nil,
	)
	return a, nil
}

func (a *Application) openStore(ctx context.Context) (ports.Store, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("no database configured, catalog is kept in memory")
		return storage.NewMemoryRepository(), nil
	}

	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := storage.Migrate(pingCtx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a.db = db
	return storage.NewPostgresRepository(db, a.cfg.Storage.BatchSize), nil
}

// rateLimiter returns nil, disabling limiting, when Redis is absent or down.
func (a *Application) rateLimiter(ctx context.Context) ports.RateLimiter {
	if a.cfg.Redis.URL == "" {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	client, err := ratelimit.NewClient(pingCtx, a.cfg.Redis.URL)
	if err != nil {
		a.logger.Warn("rate limiting disabled", "error", err)
		return nil
	}
	a.redis = client
	return ratelimit.NewRedisLimiter(client, a.cfg.Redis.RequestsPerMinute)
}

// Run serves HTTP and drives the scheduler until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown failed", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Error("scheduler stop failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		a.aggregator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("background aggregation still running at shutdown")
	}

	return runErr
}

func (a *Application) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
