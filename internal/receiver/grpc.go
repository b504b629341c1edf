package receiver

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/hklund/signaldb/internal/storage"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

// GRPCReceiver handles OTLP/gRPC export requests.
type GRPCReceiver struct {
	collogspb.UnimplementedLogsServiceServer
	store  storage.Store
	server *grpc.Server
	addr   string
}

// NewGRPCReceiver creates a new gRPC receiver listening on addr.
func NewGRPCReceiver(addr string, store storage.Store) *GRPCReceiver {
	return &GRPCReceiver{
		store: store,
		addr:  addr,
	}
}

// Start starts the gRPC server.
func (r *GRPCReceiver) Start() error {
	lis, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	r.server = grpc.NewServer()

	// Register OTLP services with wrapper types to avoid method name
	// conflicts between the three Export RPCs.
	collogspb.RegisterLogsServiceServer(r.server, r)
	colmetricspb.RegisterMetricsServiceServer(r.server, &metricsService{GRPCReceiver: r})
	coltracepb.RegisterTraceServiceServer(r.server, &traceService{GRPCReceiver: r})

	// Register reflection service for debugging with grpcurl
	reflection.Register(r.server)

	log.Printf("gRPC server listening on %s", r.addr)
	return r.server.Serve(lis)
}

// Shutdown gracefully shuts down the gRPC server.
func (r *GRPCReceiver) Shutdown(ctx context.Context) error {
	if r.server != nil {
		r.server.GracefulStop()
	}
	return nil
}

// Export implements the LogsService Export RPC.
func (r *GRPCReceiver) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	entries, rejected := convertLogs(req.ResourceLogs)
	if err := r.store.Logs().InsertBatch(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to store logs: %w", err)
	}

	resp := &collogspb.ExportLogsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: rejected,
			ErrorMessage:       "records failed validation",
		}
	}
	return resp, nil
}

type metricsService struct {
	colmetricspb.UnimplementedMetricsServiceServer
	*GRPCReceiver
}

// Export implements the MetricsService Export RPC.
func (s *metricsService) Export(ctx context.Context, req *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	metrics, rejected := convertMetrics(req.ResourceMetrics)
	if err := s.store.Metrics().InsertBatch(ctx, metrics); err != nil {
		return nil, fmt.Errorf("failed to store metrics: %w", err)
	}

	resp := &colmetricspb.ExportMetricsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &colmetricspb.ExportMetricsPartialSuccess{
			RejectedDataPoints: rejected,
			ErrorMessage:       "data points failed validation",
		}
	}
	return resp, nil
}

type traceService struct {
	coltracepb.UnimplementedTraceServiceServer
	*GRPCReceiver
}

// Export implements the TraceService Export RPC.
func (s *traceService) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	spans, rejected := convertSpans(req.ResourceSpans)
	if err := s.store.Traces().InsertBatch(ctx, spans); err != nil {
		return nil, fmt.Errorf("failed to store spans: %w", err)
	}

	resp := &coltracepb.ExportTraceServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: rejected,
			ErrorMessage:  "spans failed validation",
		}
	}
	return resp, nil
}
