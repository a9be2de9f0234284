package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"

	"CoinAggregator/internal/metrics"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	defaultTimeout   = 30 * time.Second
	maxBackoff       = time.Hour
)

// ErrDisallowed is returned when robots.txt forbids the requested path.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// Config tunes politeness and retry behaviour.
type Config struct {
	Delay         time.Duration
	MaxRetries    int
	Timeout       time.Duration
	UserAgent     string
	RespectRobots bool
}

// Request identifies one page fetch on behalf of a source adapter.
type Request struct {
	Source  string
	BaseURL string
	URL     string
}

// Engine performs throttled page fetches with bounded retries.
type Engine struct {
	client  *http.Client
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	robots map[string]*robotstxt.Group
}

// New wires an HTTP client; a nil client gets one with cfg.Timeout.
func New(client *http.Client, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		sleep:   sleepContext,
		robots:  map[string]*robotstxt.Group{},
	}
}

// Throttle waits the fixed politeness delay. Adapters call it before every
// category page.
func (e *Engine) Throttle(ctx context.Context) error {
	return e.sleep(ctx, e.cfg.Delay)
}

// Backoff returns the wait before retry number attempt (1-based): the base
// delay doubled once per attempt, capped at one hour.
func (e *Engine) Backoff(attempt int) time.Duration {
	if attempt < 1 || e.cfg.Delay <= 0 {
		return 0
	}
	if attempt >= 32 || e.cfg.Delay > maxBackoff>>attempt {
		return maxBackoff
	}
	return e.cfg.Delay << attempt
}

// Document fetches req.URL and parses it as HTML, retrying failures up to
// MaxRetries times. A successful response is never retried, even when empty.
func (e *Engine) Document(ctx context.Context, req Request) (*goquery.Document, error) {
	if !e.allowed(ctx, req) {
		e.metrics.IncrementFetch(req.Source, "disallowed")
		e.logger.Warn("fetch skipped by robots.txt", "source", req.Source, "url", req.URL)
		return nil, fmt.Errorf("fetch %s: %w", req.URL, ErrDisallowed)
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := e.Backoff(attempt)
			e.logger.Warn("retrying request",
				"source", req.Source,
				"url", req.URL,
				"attempt", attempt,
				"remaining", e.cfg.MaxRetries-attempt,
				"wait", wait,
				"error", lastErr,
			)
			if err := e.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
			}
		}

		start := time.Now()
		doc, err := e.fetchOnce(ctx, req)
		if err == nil {
			e.metrics.ObserveFetch(req.Source, "ok", time.Since(start))
			e.logger.Debug("fetched page", "source", req.Source, "url", req.URL, "attempt", attempt, "duration", time.Since(start))
			return doc, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.URL, ctx.Err())
		}
		e.metrics.ObserveFetch(req.Source, "retry", time.Since(start))
	}

	e.metrics.IncrementFetch(req.Source, "failed")
	e.logger.Error("fetch failed", "source", req.Source, "url", req.URL, "attempts", e.cfg.MaxRetries+1, "error", lastErr)
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", req.URL, e.cfg.MaxRetries+1, lastErr)
}

func (e *Engine) fetchOnce(ctx context.Context, req Request) (*goquery.Document, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	e.setHeaders(httpReq, req.BaseURL)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		body = resp.Body
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (e *Engine) setHeaders(req *http.Request, referer string) {
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

func (e *Engine) allowed(ctx context.Context, req Request) bool {
	if !e.cfg.RespectRobots {
		return true
	}

	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return true
	}
	origin := u.Scheme + "://" + u.Host

	e.mu.Lock()
	group, cached := e.robots[origin]
	e.mu.Unlock()

	if !cached {
		group = e.loadRobots(ctx, origin, req.Source)
		e.mu.Lock()
		e.robots[origin] = group
		e.mu.Unlock()
	}

	if group == nil {
		return true
	}
	return group.Test(u.RequestURI())
}

// loadRobots returns nil when robots.txt cannot be read, which allows everything.
func (e *Engine) loadRobots(ctx context.Context, origin, source string) *robotstxt.Group {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	e.setHeaders(httpReq, origin)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.logger.Debug("robots.txt unavailable", "source", source, "origin", origin, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		e.logger.Debug("robots.txt unparsable", "source", source, "origin", origin, "error", err)
		return nil
	}
	return data.FindGroup(e.cfg.UserAgent)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
