package memory

import (
	"context"
	"sync"

	"github.com/hklund/signaldb/internal/storage"
	"github.com/hklund/signaldb/pkg/models"
)

// MetricStore is the in-memory metric store.
type MetricStore struct {
	mu      sync.Mutex
	metrics []models.Metric
	closed  bool
}

// NewMetricStore creates an empty in-memory metric store.
func NewMetricStore() *MetricStore {
	return &MetricStore{}
}

// Insert appends one metric sample.
func (s *MetricStore) Insert(ctx context.Context, metric models.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.metrics = append(s.metrics, metric)
	return nil
}

// InsertBatch appends a batch of samples under one lock acquisition.
func (s *MetricStore) InsertBatch(ctx context.Context, metrics []models.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.metrics = append(s.metrics, metrics...)
	return nil
}

// Query returns metrics matching q in insertion order, plus the total
// match count before offset/limit.
func (s *MetricStore) Query(ctx context.Context, q storage.MetricQuery) ([]models.Metric, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, storage.ErrStoreClosed
	}

	matched := s.filter(q)
	total := len(matched)
	return paginate(matched, q.Limit, q.Offset), total, nil
}

// Aggregate reduces the scalar values of metrics matching q. Histogram
// metrics are excluded from sum/avg/min/max but still count. An empty
// result set yields (0, 0) for every function.
func (s *MetricStore) Aggregate(ctx context.Context, q storage.MetricQuery, fn storage.AggregateFunc) (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, 0, storage.ErrStoreClosed
	}

	matched := s.filter(q)
	return storage.Reduce(matched, fn)
}

// Count returns the number of stored samples.
func (s *MetricStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, storage.ErrStoreClosed
	}
	return len(s.metrics), nil
}

// Clear removes all samples.
func (s *MetricStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.metrics = nil
	return nil
}

func (s *MetricStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// filter applies q with the caller holding the lock.
func (s *MetricStore) filter(q storage.MetricQuery) []models.Metric {
	matched := make([]models.Metric, 0, len(s.metrics))
	for _, m := range s.metrics {
		if matchMetric(m, q) {
			matched = append(matched, m)
		}
	}
	return matched
}

// matchMetric applies every set filter in q, ANDed together.
func matchMetric(m models.Metric, q storage.MetricQuery) bool {
	if q.Name != "" && m.Name != q.Name {
		return false
	}
	if q.Type != "" && m.Type != q.Type {
		return false
	}
	return inTimeRange(m.Timestamp, q.Start, q.End)
}
