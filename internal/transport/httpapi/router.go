package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"CoinAggregator/internal/ports"
)

// RouterOptions carries the optional pieces of the public router.
type RouterOptions struct {
	AllowedOrigin string
	Limiter       ports.RateLimiter
	Metrics       http.Handler
	Logger        *slog.Logger
}

// NewRouter mounts the catalog API under /api next to /health and /metrics.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(opts.AllowedOrigin))

	r.Get("/health", h.HandleHealth)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		if opts.Limiter != nil {
			api.Use(RateLimit(opts.Limiter, logger))
		}
		h.Register(api)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return r
}
