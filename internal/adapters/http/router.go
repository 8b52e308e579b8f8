package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ymatsuda/docsearch/internal/core/domain"
	"github.com/ymatsuda/docsearch/internal/core/ports"
	"github.com/ymatsuda/docsearch/internal/observability/metrics"
)

type Router struct {
	searcher ports.DocumentSearcher
	defaults domain.FusionConfig
	metrics  *metrics.SearchMetrics
	service  string
	logger   *slog.Logger
}

func NewRouter(
	searcher ports.DocumentSearcher,
	defaults domain.FusionConfig,
	m *metrics.SearchMetrics,
	service string,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		searcher: searcher,
		defaults: defaults,
		metrics:  m,
		service:  service,
		logger:   logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.search)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query                string   `json:"query"`
	TopK                 int      `json:"top_k"`
	Strategy             string   `json:"strategy"`
	ExcludeLabels        []string `json:"exclude_labels"`
	ExcludeTitlePatterns []string `json:"exclude_title_patterns"`
	CacheTTLMs           int      `json:"cache_ttl_ms"`
}

type searchResponse struct {
	Query   string               `json:"query"`
	Results []domain.FusedResult `json:"results"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	cfg := rt.defaults
	if req.TopK > 0 {
		cfg.TopK = req.TopK
	}
	if req.Strategy != "" {
		cfg.Strategy = domain.FusionStrategy(req.Strategy)
	}
	if len(req.ExcludeLabels) > 0 {
		cfg.ExcludeLabels = req.ExcludeLabels
	}
	if len(req.ExcludeTitlePatterns) > 0 {
		cfg.ExcludeTitlePatterns = req.ExcludeTitlePatterns
	}
	if req.CacheTTLMs > 0 {
		cfg.CacheTTL = time.Duration(req.CacheTTLMs) * time.Millisecond
	}

	results, err := rt.searcher.Search(r.Context(), req.Query, cfg)
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		rt.logger.Error("search_failed",
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	if results == nil {
		results = []domain.FusedResult{}
	}

	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Results: results})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
