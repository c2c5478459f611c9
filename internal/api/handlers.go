package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/distributor"
	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/orchestrator"
)

const maxRequestBodySize = 1 << 20 // 1 MB

const (
	defaultPopularLimit = 10
	maxPopularLimit     = 100
)

type Searcher interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error)
	Suggest(query string) []string
	Product(ctx context.Context, partNumber string) (*models.ProductRecord, error)
}

type QueryStats interface {
	Popular(ctx context.Context, limit int) ([]models.QueryCount, error)
	History(ctx context.Context) ([]string, error)
}

// TopQueries ranks queries over a time window from the analytics store.
type TopQueries interface {
	TopQueries(ctx context.Context, since time.Time, limit int) ([]models.QueryCount, error)
}

type Handler struct {
	search   Searcher
	stats    QueryStats
	top      TopQueries
	validate *validator.Validate
	cfg      config.SearchConfig
	logger   *zap.Logger
}

// NewHandler wires the HTTP handlers. top may be nil when no analytics
// store is configured.
func NewHandler(search Searcher, stats QueryStats, top TopQueries, cfg config.SearchConfig, logger *zap.Logger) *Handler {
	return &Handler{
		search:   search,
		stats:    stats,
		top:      top,
		validate: validator.New(),
		cfg:      cfg,
		logger:   logger,
	}
}

type searchResponse struct {
	Products   []models.ProductRecord `json:"products"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalPages int                    `json:"total_pages"`
	EmptyPage  bool                   `json:"empty_page"`
	Source     models.Stage           `json:"source"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := RequestIDFromContext(ctx)

	req, err := h.parseSearchRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	h.normalizePaging(req)

	res, err := h.search.Search(ctx, *req)
	if err != nil {
		h.logger.Warn("search aborted",
			zap.String("request_id", requestID),
			zap.String("query", req.Query),
			zap.Error(err),
		)
		h.writeError(w, http.StatusServiceUnavailable, "search_aborted", "Search was cancelled before completing")
		return
	}

	h.writeJSON(w, http.StatusOK, searchResponse{
		Products:   res.Records,
		Total:      res.Total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages(res.Total, req.PageSize),
		EmptyPage:  res.EmptyPage,
		Source:     res.Source,
	})
}

func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	partNumber := strings.TrimSpace(chi.URLParam(r, "partNumber"))
	if partNumber == "" {
		h.writeError(w, http.StatusBadRequest, "missing_part_number", "Part number is required")
		return
	}

	rec, err := h.search.Product(r.Context(), partNumber)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, rec)
	case errors.Is(err, orchestrator.ErrProductNotFound), errors.Is(err, distributor.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Product not found")
	default:
		h.logger.Warn("product lookup failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("part_number", partNumber),
			zap.Error(err),
		)
		h.writeError(w, http.StatusBadGateway, "distributor_error", "Product lookup temporarily unavailable")
	}
}

const maxSuggestionQueryLen = 100

func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "missing_query", "Query parameter 'q' is required")
		return
	}
	q = truncateRunes(q, maxSuggestionQueryLen)

	suggestions := h.search.Suggest(q)
	if suggestions == nil {
		suggestions = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":       q,
		"suggestions": suggestions,
	})
}

// truncateRunes cuts s to at most n characters without splitting a
// multi-byte rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Popular serves counts from the tracker, or from the analytics store over
// a time window when ?window= is given and one is configured.
func (h *Handler) Popular(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultPopularLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, maxPopularLimit)
	}

	if window := r.URL.Query().Get("window"); window != "" && h.top != nil {
		d, err := time.ParseDuration(window)
		if err != nil || d <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_window", "window must be a positive duration such as 24h")
			return
		}
		queries, err := h.top.TopQueries(ctx, time.Now().Add(-d), limit)
		if err == nil {
			h.writeJSON(w, http.StatusOK, map[string]any{"queries": queries, "source": "analytics"})
			return
		}
		h.logger.Warn("analytics top queries failed, using tracker", zap.Error(err))
	}

	queries, err := h.stats.Popular(ctx, limit)
	if err != nil {
		h.logger.Warn("popular queries unavailable", zap.Error(err))
		queries = []models.QueryCount{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"queries": queries, "source": "tracker"})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.stats.History(r.Context())
	if err != nil {
		h.logger.Warn("search history unavailable", zap.Error(err))
	}
	if history == nil {
		history = []string{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *Handler) parseSearchRequest(r *http.Request) (*models.SearchRequest, error) {
	if r.Method == http.MethodPost {
		var req models.SearchRequest
		limited := io.LimitReader(r.Body, maxRequestBodySize)
		if err := json.NewDecoder(limited).Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	// GET request
	q := r.URL.Query()
	req := &models.SearchRequest{
		Query:  q.Get("q"),
		Vendor: q.Get("vendor"),
	}

	if p := q.Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err == nil && page >= 0 {
			req.Page = page
		}
	}

	if ps := q.Get("page_size"); ps != "" {
		pageSize, err := strconv.Atoi(ps)
		if err == nil && pageSize > 0 {
			req.PageSize = pageSize
		}
	}

	if uk := q.Get("use_keywords"); uk != "" {
		if v, err := strconv.ParseBool(uk); err == nil {
			req.UseKeywords = v
		}
	}

	return req, nil
}

// normalizePaging applies the same page defaults and caps the orchestrator
// uses, so the envelope reports the page that was actually served.
func (h *Handler) normalizePaging(req *models.SearchRequest) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = h.cfg.DefaultPageSize
	}
	if h.cfg.MaxPageSize > 0 && req.PageSize > h.cfg.MaxPageSize {
		req.PageSize = h.cfg.MaxPageSize
	}
}

func totalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("writing json response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
