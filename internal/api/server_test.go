package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hklund/signaldb/internal/storage/memory"
	"github.com/hklund/signaldb/pkg/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store := memory.New()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	logs := []models.LogEntry{
		{Timestamp: base, Level: models.LevelInfo, Message: "request received", Service: "api"},
		{Timestamp: base.Add(time.Second), Level: models.LevelError, Message: "charge failed", Service: "payment"},
		{Timestamp: base.Add(2 * time.Second), Level: models.LevelWarn, Message: "retry scheduled", Service: "payment"},
	}
	if err := store.Logs().InsertBatch(ctx, logs); err != nil {
		t.Fatalf("seeding logs: %v", err)
	}

	metrics := []models.Metric{
		{Timestamp: base, Name: "latency_ms", Type: models.MetricGauge, Value: 100},
		{Timestamp: base.Add(time.Second), Name: "latency_ms", Type: models.MetricGauge, Value: 300},
	}
	if err := store.Metrics().InsertBatch(ctx, metrics); err != nil {
		t.Fatalf("seeding metrics: %v", err)
	}

	spans := []models.Span{
		{TraceID: "t1", SpanID: "s1", Name: "GET /pay", Service: "api",
			Kind: models.KindServer, Status: models.StatusOK,
			StartTime: base, EndTime: base.Add(80 * time.Millisecond)},
		{TraceID: "t1", SpanID: "s2", ParentSpanID: "s1", Name: "charge", Service: "payment",
			Kind: models.KindClient, Status: models.StatusError,
			StartTime: base.Add(10 * time.Millisecond), EndTime: base.Add(70 * time.Millisecond)},
	}
	if err := store.Traces().InsertBatch(ctx, spans); err != nil {
		t.Fatalf("seeding spans: %v", err)
	}

	return NewServer("127.0.0.1:0", store)
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) PaginatedResponse {
	t.Helper()

	var page PaginatedResponse
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return page
}

func TestHandleLogs(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/logs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	page := decodePage(t, rec)
	if page.Total != 3 {
		t.Errorf("expected total 3, got %d", page.Total)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/logs?service=payment&min_level=warn", "")
	page = decodePage(t, rec)
	if page.Total != 2 {
		t.Errorf("expected 2 payment entries at warn+, got %d", page.Total)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/logs?min_level=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad level, got %d", rec.Code)
	}
}

func TestHandleLogsPagination(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/logs?limit=2&offset=0", "")
	page := decodePage(t, rec)
	if page.Total != 3 || page.Limit != 2 || !page.HasMore {
		t.Errorf("unexpected page metadata: %+v", page)
	}
	entries, ok := page.Data.([]any)
	if !ok || len(entries) != 2 {
		t.Errorf("expected 2 entries in page, got %v", page.Data)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/logs?limit=2&offset=2", "")
	page = decodePage(t, rec)
	if page.HasMore {
		t.Error("last page must not report has_more")
	}
}

func TestHandleMetricsAggregate(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/metrics/aggregate?fn=avg&name=latency_ms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp AggregateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Function != "avg" || resp.Value != 200 || resp.SampleCount != 2 {
		t.Errorf("unexpected aggregate: %+v", resp)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/metrics/aggregate?fn=median", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown function, got %d", rec.Code)
	}
}

func TestHandleTraces(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/traces", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	page := decodePage(t, rec)
	if page.Total != 1 {
		t.Errorf("expected 1 trace, got %d", page.Total)
	}

	raw, err := json.Marshal(page.Data)
	if err != nil {
		t.Fatalf("re-marshaling data: %v", err)
	}
	var views []struct {
		TraceID    string   `json:"trace_id"`
		DurationMs int64    `json:"duration_ms"`
		SpanCount  int      `json:"span_count"`
		Services   []string `json:"services"`
	}
	if err := json.Unmarshal(raw, &views); err != nil {
		t.Fatalf("decoding trace views: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	v := views[0]
	if v.TraceID != "t1" || v.DurationMs != 80 || v.SpanCount != 2 {
		t.Errorf("unexpected trace view: %+v", v)
	}
	if len(v.Services) != 2 {
		t.Errorf("expected 2 services, got %v", v.Services)
	}
}

func TestHandleGetTrace(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/traces/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var trace models.Trace
	if err := json.NewDecoder(rec.Body).Decode(&trace); err != nil {
		t.Fatalf("decoding trace: %v", err)
	}
	if trace.TraceID != "t1" || len(trace.Spans) != 2 {
		t.Errorf("unexpected trace: %+v", trace)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/traces/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown trace, got %d", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats StatsResponse
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.LogCount != 3 || stats.MetricCount != 2 || stats.SpanCount != 2 || stats.TraceCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHandleQuery(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/query",
		`{"query": "SELECT * FROM logs WHERE service = 'payment' ORDER BY timestamp DESC"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Normalized string          `json:"normalized"`
		Data       json.RawMessage `json:"data"`
		Total      int             `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("expected total 2, got %d", resp.Total)
	}
	if !strings.HasPrefix(resp.Normalized, "SELECT * FROM logs WHERE") {
		t.Errorf("unexpected normalized query: %q", resp.Normalized)
	}

	var entries []models.LogEntry
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		t.Fatalf("decoding entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Message != "retry scheduled" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestHandleQueryErrors(t *testing.T) {
	s := newTestServer(t)

	// Syntax error.
	rec := doRequest(t, s, http.MethodPost, "/api/v1/query", `{"query": "SELEKT * FROM logs"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for syntax error, got %d", rec.Code)
	}

	// Unsupported source.
	rec = doRequest(t, s, http.MethodPost, "/api/v1/query", `{"query": "SELECT * FROM metrics"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported source, got %d", rec.Code)
	}

	// Malformed body.
	rec = doRequest(t, s, http.MethodPost, "/api/v1/query", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("unexpected status: %q", health.Status)
	}
}
