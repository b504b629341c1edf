// Package storage defines the store contracts for telemetry data.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hklund/signaldb/pkg/models"
)

// ErrNotFound is returned when a requested item is not found.
var ErrNotFound = models.ErrNotFound

// ErrStoreClosed is returned when an operation reaches a store that has
// been closed. A closed store must report this error, never a silent
// empty result.
var ErrStoreClosed = errors.New("store is closed")

// LogQuery holds structured filter parameters for log queries.
// Every set filter is ANDed with the others; zero values impose no
// constraint. Time ranges are start-inclusive, end-exclusive.
type LogQuery struct {
	// Service filters on exact service name.
	Service string

	// MinLevel keeps entries at or above this severity.
	MinLevel *models.LogLevel

	// Contains performs a case-insensitive substring match on the message.
	Contains string

	// TraceID filters on exact trace correlation ID.
	TraceID string

	// Start and End bound the timestamp; zero means unbounded.
	Start time.Time
	End   time.Time

	// Offset skips that many matches; Limit caps the returned count
	// (0 means unlimited). Both apply after filtering and sorting.
	Limit  int
	Offset int
}

// MetricQuery holds structured filter parameters for metric queries.
type MetricQuery struct {
	// Name filters on exact metric name.
	Name string

	// Type filters on metric type.
	Type models.MetricType

	// Start and End bound the timestamp; zero means unbounded.
	Start time.Time
	End   time.Time

	Limit  int
	Offset int
}

// TraceQuery holds structured filter parameters for trace queries.
type TraceQuery struct {
	// Service keeps traces where any span's service matches exactly.
	Service string

	// MinDurationMs and MaxDurationMs bound the trace duration in
	// milliseconds, inclusive on both ends. Zero MaxDurationMs means
	// unbounded.
	MinDurationMs int64
	MaxDurationMs int64

	// Start and End bound the trace start time; zero means unbounded.
	Start time.Time
	End   time.Time

	Limit  int
	Offset int
}

// AggregateFunc is a reduction over a filtered metric set.
type AggregateFunc string

const (
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
	AggCount AggregateFunc = "count"
)

// ParseAggregateFunc converts a function name (any case) to an AggregateFunc.
func ParseAggregateFunc(s string) (AggregateFunc, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum":
		return AggSum, nil
	case "avg":
		return AggAvg, nil
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	case "count":
		return AggCount, nil
	default:
		return "", fmt.Errorf("unknown aggregate function %q", s)
	}
}

// LogStore stores and queries log entries.
// Implementations must be safe for concurrent use.
type LogStore interface {
	Insert(ctx context.Context, entry models.LogEntry) error
	InsertBatch(ctx context.Context, entries []models.LogEntry) error

	// Query returns matching entries plus the total match count before
	// offset/limit were applied.
	Query(ctx context.Context, q LogQuery) ([]models.LogEntry, int, error)

	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// MetricStore stores and queries metrics.
// Implementations must be safe for concurrent use.
type MetricStore interface {
	Insert(ctx context.Context, metric models.Metric) error
	InsertBatch(ctx context.Context, metrics []models.Metric) error
	Query(ctx context.Context, q MetricQuery) ([]models.Metric, int, error)

	// Aggregate reduces the scalar values of metrics matching q.
	// Histogram metrics carry no scalar: they are excluded from
	// sum/avg/min/max but still count. Empty result sets yield (0, 0).
	Aggregate(ctx context.Context, q MetricQuery, fn AggregateFunc) (float64, int, error)

	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// TraceStore stores spans and queries assembled traces.
// Implementations must be safe for concurrent use.
type TraceStore interface {
	Insert(ctx context.Context, span models.Span) error
	InsertBatch(ctx context.Context, spans []models.Span) error
	Query(ctx context.Context, q TraceQuery) ([]models.Trace, int, error)

	// GetTrace assembles the trace with the given ID, or returns an
	// error wrapping ErrNotFound when no spans carry it.
	GetTrace(ctx context.Context, traceID string) (*models.Trace, error)

	// SpanCount and TraceCount count stored spans and distinct traces.
	SpanCount(ctx context.Context) (int, error)
	TraceCount(ctx context.Context) (int, error)

	Clear(ctx context.Context) error
}

// Store bundles the three typed stores behind one backend.
type Store interface {
	Logs() LogStore
	Metrics() MetricStore
	Traces() TraceStore

	// Close releases backend resources (DB connections etc).
	Close() error
}
