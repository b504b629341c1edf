package memory

import (
	"context"
	"sync"

	"github.com/hklund/signaldb/internal/storage"
	"github.com/hklund/signaldb/pkg/models"
)

// LogStore is the in-memory log store. Entries live in one lock-guarded
// append-only slice in insertion order; queries scan it in full.
type LogStore struct {
	mu      sync.Mutex
	entries []models.LogEntry
	closed  bool
}

// NewLogStore creates an empty in-memory log store.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// Insert appends one entry.
func (s *LogStore) Insert(ctx context.Context, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.entries = append(s.entries, entry)
	return nil
}

// InsertBatch appends a batch of entries under one lock acquisition.
func (s *LogStore) InsertBatch(ctx context.Context, entries []models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.entries = append(s.entries, entries...)
	return nil
}

// Query returns entries matching q in insertion order, plus the total
// match count before offset/limit.
func (s *LogStore) Query(ctx context.Context, q storage.LogQuery) ([]models.LogEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, storage.ErrStoreClosed
	}

	matched := make([]models.LogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if matchLog(e, q) {
			matched = append(matched, e)
		}
	}

	total := len(matched)
	return paginate(matched, q.Limit, q.Offset), total, nil
}

// Count returns the number of stored entries.
func (s *LogStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, storage.ErrStoreClosed
	}
	return len(s.entries), nil
}

// Clear removes all entries.
func (s *LogStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}
	s.entries = nil
	return nil
}

func (s *LogStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// matchLog applies every set filter in q, ANDed together.
func matchLog(e models.LogEntry, q storage.LogQuery) bool {
	if q.Service != "" && e.Service != q.Service {
		return false
	}
	if q.MinLevel != nil && e.Level < *q.MinLevel {
		return false
	}
	if q.Contains != "" && !containsFold(e.Message, q.Contains) {
		return false
	}
	if q.TraceID != "" && e.TraceID != q.TraceID {
		return false
	}
	return inTimeRange(e.Timestamp, q.Start, q.End)
}
