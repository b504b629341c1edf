// Package api provides the REST query surface over the telemetry stores.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hklund/signaldb/internal/storage"
	"github.com/hklund/signaldb/pkg/models"
)

// Server is the REST API server.
type Server struct {
	store  storage.Store
	router *chi.Mux
	server *http.Server
}

// PaginatedResponse wraps a paginated response with metadata.
type PaginatedResponse struct {
	Data    any  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewServer creates a new API server.
func NewServer(addr string, store storage.Store) *Server {
	s := &Server{
		store:  store,
		router: chi.NewRouter(),
	}

	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.HandleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/logs", s.handleLogs)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/metrics/aggregate", s.handleAggregate)
		r.Get("/traces", s.handleTraces)
		r.Get("/traces/{traceID}", s.handleGetTrace)
		r.Get("/stats", s.handleStats)
		r.Post("/query", s.handleQuery)
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// parsePagination extracts limit/offset from the request.
// Defaults: limit=100, offset=0, max_limit=1000.
func parsePagination(r *http.Request) (limit, offset int) {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)

	limit = defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > maxLimit {
				limit = maxLimit
			}
		}
	}

	offset = 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}

// parseTimeRange extracts optional RFC 3339 start/end query parameters.
func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	if raw := r.URL.Query().Get("start"); raw != "" {
		start, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, errors.New("invalid start time, expected RFC 3339")
		}
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, errors.New("invalid end time, expected RFC 3339")
		}
	}
	return start, end, nil
}

func paginated(data any, total, limit, offset int) PaginatedResponse {
	return PaginatedResponse{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q := storage.LogQuery{
		Service:  r.URL.Query().Get("service"),
		Contains: r.URL.Query().Get("contains"),
		TraceID:  r.URL.Query().Get("trace_id"),
		Start:    start,
		End:      end,
		Limit:    limit,
		Offset:   offset,
	}

	if raw := r.URL.Query().Get("min_level"); raw != "" {
		level, err := models.ParseLevel(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		q.MinLevel = &level
	}

	entries, total, err := s.store.Logs().Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(entries, total, limit, offset))
}

func (s *Server) parseMetricQuery(r *http.Request) (storage.MetricQuery, error) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		return storage.MetricQuery{}, err
	}

	q := storage.MetricQuery{
		Name:  r.URL.Query().Get("name"),
		Start: start,
		End:   end,
	}

	if raw := r.URL.Query().Get("type"); raw != "" {
		metricType, err := models.ParseMetricType(raw)
		if err != nil {
			return storage.MetricQuery{}, err
		}
		q.Type = metricType
	}

	return q, nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := s.parseMetricQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	q.Limit, q.Offset = parsePagination(r)

	metrics, total, err := s.store.Metrics().Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, paginated(metrics, total, q.Limit, q.Offset))
}

// AggregateResponse is the result of a metric aggregation.
type AggregateResponse struct {
	Function    string  `json:"function"`
	Value       float64 `json:"value"`
	SampleCount int     `json:"sample_count"`
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	fn, err := storage.ParseAggregateFunc(r.URL.Query().Get("fn"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q, err := s.parseMetricQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	value, count, err := s.store.Metrics().Aggregate(r.Context(), q, fn)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, AggregateResponse{
		Function:    string(fn),
		Value:       value,
		SampleCount: count,
	})
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q := storage.TraceQuery{
		Service: r.URL.Query().Get("service"),
		Start:   start,
		End:     end,
		Limit:   limit,
		Offset:  offset,
	}

	if raw := r.URL.Query().Get("min_duration_ms"); raw != "" {
		if q.MinDurationMs, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid min_duration_ms"))
			return
		}
	}
	if raw := r.URL.Query().Get("max_duration_ms"); raw != "" {
		if q.MaxDurationMs, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid max_duration_ms"))
			return
		}
	}

	traces, total, err := s.store.Traces().Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Decorate each trace with its derived properties so clients don't
	// recompute them.
	type traceView struct {
		models.Trace
		DurationMs int64    `json:"duration_ms"`
		SpanCount  int      `json:"span_count"`
		Services   []string `json:"services"`
	}
	views := make([]traceView, 0, len(traces))
	for _, t := range traces {
		views = append(views, traceView{
			Trace:      t,
			DurationMs: t.Duration().Milliseconds(),
			SpanCount:  t.SpanCount(),
			Services:   t.Services(),
		})
	}
	writeJSON(w, http.StatusOK, paginated(views, total, limit, offset))
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	trace, err := s.store.Traces().GetTrace(r.Context(), traceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// StatsResponse reports store-wide counts.
type StatsResponse struct {
	LogCount    int `json:"log_count"`
	MetricCount int `json:"metric_count"`
	SpanCount   int `json:"span_count"`
	TraceCount  int `json:"trace_count"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logs, err := s.store.Logs().Count(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	metrics, err := s.store.Metrics().Count(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	spans, err := s.store.Traces().SpanCount(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	traces, err := s.store.Traces().TraceCount(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		LogCount:    logs,
		MetricCount: metrics,
		SpanCount:   spans,
		TraceCount:  traces,
	})
}
