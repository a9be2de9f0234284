package httpapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"CoinAggregator/internal/domain"
	"CoinAggregator/internal/usecase"
)

const defaultOutcomeLimit = 50

// CatalogService is the read side the handlers depend on.
type CatalogService interface {
	Search(ctx context.Context, filter domain.Filter, page, limit int) (usecase.Page, error)
	Get(ctx context.Context, id string) (domain.CatalogItem, error)
	Similar(ctx context.Context, id string) ([]domain.CatalogItem, error)
	Export(ctx context.Context, filter domain.Filter) ([]domain.CatalogItem, error)
	SourceStats(ctx context.Context) ([]domain.SourceStats, error)
	RecentOutcomes(ctx context.Context, limit int) ([]domain.RunOutcome, error)
	Health(ctx context.Context) error
}

// Runner starts aggregation runs in the background.
type Runner interface {
	Start(ctx context.Context) bool
}

// Handler wires catalog endpoints to the catalog service and the run coordinator.
type Handler struct {
	catalog CatalogService
	runner  Runner
	runCtx  context.Context
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a handler. runCtx scopes refresh runs triggered over HTTP so
// they outlive the request but stop on shutdown.
func New(runCtx context.Context, catalog CatalogService, runner Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		catalog: catalog,
		runner:  runner,
		runCtx:  runCtx,
		logger:  logger.With("component", "http"),
		now:     time.Now,
	}
}

// Register mounts catalog endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/items", h.HandleSearch)
	r.Get("/items/export", h.HandleExport)
	r.Get("/items/{id}", h.HandleGet)
	r.Get("/items/{id}/similar", h.HandleSimilar)
	r.Get("/sources/stats", h.HandleSourceStats)
	r.Get("/sources/runs", h.HandleRuns)
	r.Post("/refresh", h.HandleRefresh)
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type searchResponse struct {
	Data       []domain.CatalogItem `json:"data"`
	Pagination pagination           `json:"pagination"`
}

// HandleSearch handles GET /items.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := parsePaging(q)

	res, err := h.catalog.Search(r.Context(), parseFilter(q), page, limit)
	if err != nil {
		h.fail(w, r, "search failed", err, "Failed to fetch coins")
		return
	}

	items := res.Items
	if items == nil {
		items = []domain.CatalogItem{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Data: items,
		Pagination: pagination{
			Page:       res.Page,
			Limit:      res.Limit,
			Total:      res.Total,
			TotalPages: res.TotalPages,
		},
	})
}

// HandleExport handles GET /items/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Export(r.Context(), parseFilter(r.URL.Query()))
	if err != nil {
		h.fail(w, r, "export failed", err, "Failed to export coins")
		return
	}

	var buf bytes.Buffer
	if err := writeCSV(&buf, items); err != nil {
		h.fail(w, r, "encode csv failed", err, "Failed to export coins")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename(h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// HandleGet handles GET /items/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Coin not found")
		return
	}
	if err != nil {
		h.fail(w, r, "get item failed", err, "Failed to fetch coin")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleSimilar handles GET /items/{id}/similar.
func (h *Handler) HandleSimilar(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Similar(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Coin not found")
		return
	}
	if err != nil {
		h.fail(w, r, "similar items failed", err, "Failed to fetch similar coins")
		return
	}
	if items == nil {
		items = []domain.CatalogItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleSourceStats handles GET /sources/stats.
func (h *Handler) HandleSourceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.SourceStats(r.Context())
	if err != nil {
		h.fail(w, r, "source stats failed", err, "Failed to fetch source stats")
		return
	}
	if stats == nil {
		stats = []domain.SourceStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleRuns handles GET /sources/runs, the most recent run outcomes.
func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultOutcomeLimit
	if v := intParam(r.URL.Query(), "limit"); v != nil && *v > 0 {
		limit = *v
	}
	outcomes, err := h.catalog.RecentOutcomes(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "list outcomes failed", err, "Failed to fetch run history")
		return
	}
	if outcomes == nil {
		outcomes = []domain.RunOutcome{}
	}
	writeJSON(w, http.StatusOK, outcomes)
}

type refreshResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// HandleRefresh handles POST /refresh. It never waits for the run.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !h.runner.Start(h.runCtx) {
		writeJSON(w, http.StatusOK, refreshResponse{Message: "Refresh already in progress", Status: "running"})
		return
	}
	h.logger.InfoContext(r.Context(), "manual refresh started", "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusAccepted, refreshResponse{Message: "Refresh started", Status: "running"})
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Health(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Timestamp: h.now().UTC()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: h.now().UTC()})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error, public string) {
	h.logger.ErrorContext(r.Context(), msg,
		"request_id", middleware.GetReqID(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, public)
}
