// Package receiver implements the OTLP ingestion boundary: HTTP and gRPC
// endpoints that decode export requests, map them onto the core entities
// and insert them into the stores.
package receiver

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/hklund/signaldb/internal/storage"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// HTTPReceiver handles OTLP/HTTP export requests.
type HTTPReceiver struct {
	store  storage.Store
	server *http.Server
}

// NewHTTPReceiver creates a new HTTP receiver listening on addr.
func NewHTTPReceiver(addr string, store storage.Store) *HTTPReceiver {
	r := &HTTPReceiver{store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", r.handleLogs)
	mux.HandleFunc("/v1/metrics", r.handleMetrics)
	mux.HandleFunc("/v1/traces", r.handleTraces)

	r.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return r
}

// Start starts the HTTP server.
func (r *HTTPReceiver) Start() error {
	return r.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (r *HTTPReceiver) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// readBody reads the request body, transparently handling gzip.
func readBody(req *http.Request) ([]byte, error) {
	reader := io.ReadCloser(req.Body)
	if req.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(req.Body)
		if err != nil {
			return nil, fmt.Errorf("decompressing body: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	defer req.Body.Close()

	return io.ReadAll(reader)
}

// unmarshalRequest decodes an OTLP export request: protobuf first (the
// OTLP default), JSON as a fallback.
func unmarshalRequest(body []byte, msg proto.Message) error {
	if err := proto.Unmarshal(body, msg); err != nil {
		unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
		if jsonErr := unmarshaler.Unmarshal(body, msg); jsonErr != nil {
			return fmt.Errorf("protobuf error: %v, json error: %v", err, jsonErr)
		}
	}
	return nil
}

// writeResponse marshals the OTLP response to match the request's
// content type.
func writeResponse(w http.ResponseWriter, req *http.Request, msg proto.Message) {
	var (
		data []byte
		err  error
	)
	if strings.Contains(req.Header.Get("Content-Type"), "json") {
		data, err = protojson.Marshal(msg)
		w.Header().Set("Content-Type", "application/json")
	} else {
		data, err = proto.Marshal(msg)
		w.Header().Set("Content-Type", "application/x-protobuf")
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (r *HTTPReceiver) handleLogs(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	var exportReq collogspb.ExportLogsServiceRequest
	if err := unmarshalRequest(body, &exportReq); err != nil {
		log.Printf("Failed to parse logs request: %v", err)
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	entries, rejected := convertLogs(exportReq.ResourceLogs)
	if err := r.store.Logs().InsertBatch(req.Context(), entries); err != nil {
		log.Printf("Failed to store logs: %v", err)
		http.Error(w, fmt.Sprintf("Failed to store logs: %v", err), http.StatusInternalServerError)
		return
	}

	resp := &collogspb.ExportLogsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: rejected,
			ErrorMessage:       "records failed validation",
		}
	}
	writeResponse(w, req, resp)
}

func (r *HTTPReceiver) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	var exportReq colmetricspb.ExportMetricsServiceRequest
	if err := unmarshalRequest(body, &exportReq); err != nil {
		log.Printf("Failed to parse metrics request: %v", err)
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	metrics, rejected := convertMetrics(exportReq.ResourceMetrics)
	if err := r.store.Metrics().InsertBatch(req.Context(), metrics); err != nil {
		log.Printf("Failed to store metrics: %v", err)
		http.Error(w, fmt.Sprintf("Failed to store metrics: %v", err), http.StatusInternalServerError)
		return
	}

	resp := &colmetricspb.ExportMetricsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &colmetricspb.ExportMetricsPartialSuccess{
			RejectedDataPoints: rejected,
			ErrorMessage:       "data points failed validation",
		}
	}
	writeResponse(w, req, resp)
}

func (r *HTTPReceiver) handleTraces(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	var exportReq coltracepb.ExportTraceServiceRequest
	if err := unmarshalRequest(body, &exportReq); err != nil {
		log.Printf("Failed to parse traces request: %v", err)
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	spans, rejected := convertSpans(exportReq.ResourceSpans)
	if err := r.store.Traces().InsertBatch(req.Context(), spans); err != nil {
		log.Printf("Failed to store spans: %v", err)
		http.Error(w, fmt.Sprintf("Failed to store spans: %v", err), http.StatusInternalServerError)
		return
	}

	resp := &coltracepb.ExportTraceServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: rejected,
			ErrorMessage:  "spans failed validation",
		}
	}
	writeResponse(w, req, resp)
}
