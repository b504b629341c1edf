// Package memory provides the in-memory reference implementation of the
// store contracts. Each store guards a single append-only slice with a
// mutex; filtering, pagination and aggregation semantics defined here are
// the canonical behavior other backends must match.
package memory

import (
	"strings"
	"time"

	"github.com/hklund/signaldb/internal/storage"
)

// Store bundles the three in-memory stores as one backend.
type Store struct {
	logs    *LogStore
	metrics *MetricStore
	traces  *TraceStore
}

// New creates a new in-memory backend.
func New() *Store {
	return &Store{
		logs:    NewLogStore(),
		metrics: NewMetricStore(),
		traces:  NewTraceStore(),
	}
}

// Logs returns the log store.
func (s *Store) Logs() storage.LogStore { return s.logs }

// Metrics returns the metric store.
func (s *Store) Metrics() storage.MetricStore { return s.metrics }

// Traces returns the trace store.
func (s *Store) Traces() storage.TraceStore { return s.traces }

// Close marks all three stores closed. Subsequent operations return
// ErrStoreClosed.
func (s *Store) Close() error {
	s.logs.close()
	s.metrics.close()
	s.traces.close()
	return nil
}

// containsFold reports whether haystack contains needle, ignoring case.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// inTimeRange reports whether t falls in [start, end). Zero bounds are open.
func inTimeRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && !t.Before(end) {
		return false
	}
	return true
}

// paginate slices items by offset/limit, limit 0 meaning unlimited.
// Negative values are treated as 0 so callers bypassing request
// validation cannot trip a slice bounds panic.
func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
