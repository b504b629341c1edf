package receiver

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hklund/signaldb/internal/storage"
	"github.com/hklund/signaldb/internal/storage/memory"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

func logsRequest(t *testing.T) *collogspb.ExportLogsServiceRequest {
	t.Helper()

	ts := uint64(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC).UnixNano())
	return &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{
			{
				Resource: serviceResource("api"),
				ScopeLogs: []*logspb.ScopeLogs{
					{
						LogRecords: []*logspb.LogRecord{
							{TimeUnixNano: ts, Body: stringBody("request ok"),
								SeverityNumber: logspb.SeverityNumber_SEVERITY_NUMBER_INFO},
							{TimeUnixNano: ts, Body: stringBody("request failed"),
								SeverityNumber: logspb.SeverityNumber_SEVERITY_NUMBER_ERROR},
						},
					},
				},
			},
		},
	}
}

func TestHandleLogsProtobuf(t *testing.T) {
	store := memory.New()
	r := NewHTTPReceiver("127.0.0.1:0", store)

	body, err := proto.Marshal(logsRequest(t))
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/x-protobuf")
	rec := httptest.NewRecorder()
	r.handleLogs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-protobuf" {
		t.Errorf("unexpected content type %q", ct)
	}

	var resp collogspb.ExportLogsServiceResponse
	if err := proto.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if resp.PartialSuccess != nil {
		t.Errorf("expected full success, got %+v", resp.PartialSuccess)
	}

	n, err := store.Logs().Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 stored entries, got %d", n)
	}
}

func TestHandleLogsJSON(t *testing.T) {
	store := memory.New()
	r := NewHTTPReceiver("127.0.0.1:0", store)

	body, err := protojson.Marshal(logsRequest(t))
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.handleLogs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	n, _ := store.Logs().Count(context.Background())
	if n != 2 {
		t.Errorf("expected 2 stored entries, got %d", n)
	}
}

func TestHandleLogsGzip(t *testing.T) {
	store := memory.New()
	r := NewHTTPReceiver("127.0.0.1:0", store)

	raw, err := proto.Marshal(logsRequest(t))
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		t.Fatalf("compressing body: %v", err)
	}
	gz.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", &buf)
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	r.handleLogs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	n, _ := store.Logs().Count(context.Background())
	if n != 2 {
		t.Errorf("expected 2 stored entries, got %d", n)
	}
}

func TestHandleLogsPartialSuccess(t *testing.T) {
	store := memory.New()
	r := NewHTTPReceiver("127.0.0.1:0", store)

	exportReq := logsRequest(t)
	// A record with no body fails validation and gets rejected.
	records := exportReq.ResourceLogs[0].ScopeLogs[0].LogRecords
	exportReq.ResourceLogs[0].ScopeLogs[0].LogRecords = append(records, &logspb.LogRecord{
		TimeUnixNano: records[0].TimeUnixNano,
	})

	body, err := proto.Marshal(exportReq)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/x-protobuf")
	rec := httptest.NewRecorder()
	r.handleLogs(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp collogspb.ExportLogsServiceResponse
	if err := proto.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if resp.PartialSuccess == nil || resp.PartialSuccess.RejectedLogRecords != 1 {
		t.Errorf("expected 1 rejected record, got %+v", resp.PartialSuccess)
	}

	n, _ := store.Logs().Count(context.Background())
	if n != 2 {
		t.Errorf("expected 2 stored entries, got %d", n)
	}
}

func TestHandleLogsBadRequest(t *testing.T) {
	r := NewHTTPReceiver("127.0.0.1:0", memory.New())

	req := httptest.NewRequest(http.MethodPost, "/v1/logs", bytes.NewReader([]byte("{not valid")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.handleLogs(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for garbage body, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/logs", nil)
	rec = httptest.NewRecorder()
	r.handleLogs(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}
}

var _ storage.Store = (*memory.Store)(nil)
