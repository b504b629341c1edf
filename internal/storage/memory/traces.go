package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hklund/signaldb/internal/storage"
	"github.com/hklund/signaldb/pkg/models"
)

// TraceStore is the in-memory span store. Spans live in one lock-guarded
// append-only slice; traces are assembled from it on every query, never
// cached.
type TraceStore struct {
	mu     sync.Mutex
	spans  []models.Span
	closed bool
}

// NewTraceStore creates an empty in-memory trace store.
func NewTraceStore() *TraceStore {
	return &TraceStore{}
}

// Insert appends one span.
func (s *TraceStore) Insert(ctx context.Context, span models.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.spans = append(s.spans, span)
	return nil
}

// InsertBatch appends a batch of spans under one lock acquisition.
func (s *TraceStore) InsertBatch(ctx context.Context, spans []models.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.spans = append(s.spans, spans...)
	return nil
}

// Query assembles all stored traces, filters them by q, and returns the
// matching page plus the total match count. Traces are ordered by the
// first appearance of their trace ID in the span log.
func (s *TraceStore) Query(ctx context.Context, q storage.TraceQuery) ([]models.Trace, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, storage.ErrStoreClosed
	}

	matched := make([]models.Trace, 0)
	for _, trace := range storage.GroupSpans(s.spans) {
		if storage.MatchTrace(trace, q) {
			matched = append(matched, *trace)
		}
	}

	total := len(matched)
	return paginate(matched, q.Limit, q.Offset), total, nil
}

// GetTrace assembles the trace with the given ID.
func (s *TraceStore) GetTrace(ctx context.Context, traceID string) (*models.Trace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrStoreClosed
	}

	var spans []models.Span
	for _, span := range s.spans {
		if span.TraceID == traceID {
			spans = append(spans, span)
		}
	}

	trace := models.AssembleTrace(spans)
	if trace == nil {
		return nil, fmt.Errorf("trace %s: %w", traceID, storage.ErrNotFound)
	}
	return trace, nil
}

// SpanCount returns the number of stored spans.
func (s *TraceStore) SpanCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, storage.ErrStoreClosed
	}
	return len(s.spans), nil
}

// TraceCount returns the number of distinct trace IDs.
func (s *TraceStore) TraceCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, storage.ErrStoreClosed
	}

	seen := make(map[string]struct{})
	for _, span := range s.spans {
		seen[span.TraceID] = struct{}{}
	}
	return len(seen), nil
}

// Clear removes all spans.
func (s *TraceStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.spans = nil
	return nil
}

func (s *TraceStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

