// Package clickhouse provides a ClickHouse-backed implementation of the
// store contracts, for analytical workloads where the embedded backends
// run out of headroom. The contract semantics match the reference store;
// filters translate to predicates on the MergeTree tables.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/hklund/signaldb/internal/storage"
	"github.com/hklund/signaldb/pkg/models"
)

// Store is a ClickHouse-backed telemetry store.
type Store struct {
	conn   driver.Conn
	logger *slog.Logger

	// Insertion sequence counters, seeded from the tables at startup.
	logSeq    atomic.Uint64
	metricSeq atomic.Uint64
	spanSeq   atomic.Uint64
}

// NewStore connects to ClickHouse, creates the schema and seeds the
// sequence counters.
func NewStore(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}

	if err := initializeSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	s := &Store{conn: conn, logger: logger}
	for table, seq := range map[string]*atomic.Uint64{
		"logs":    &s.logSeq,
		"metrics": &s.metricSeq,
		"spans":   &s.spanSeq,
	} {
		var max uint64
		if err := conn.QueryRow(ctx, "SELECT coalesce(max(seq), 0) FROM "+table).Scan(&max); err != nil {
			conn.Close()
			return nil, fmt.Errorf("reading %s sequence: %w", table, err)
		}
		seq.Store(max)
	}

	logger.Info("clickhouse store ready", "addr", cfg.Addr, "database", cfg.Database)
	return s, nil
}

// Logs returns the log store view.
func (s *Store) Logs() storage.LogStore { return &logStore{s} }

// Metrics returns the metric store view.
func (s *Store) Metrics() storage.MetricStore { return &metricStore{s} }

// Traces returns the trace store view.
func (s *Store) Traces() storage.TraceStore { return &traceStore{s} }

// Close closes the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON[T any](raw string, dest *T) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

// logStore implements storage.LogStore.
type logStore struct {
	s *Store
}

func (l *logStore) Insert(ctx context.Context, entry models.LogEntry) error {
	return l.InsertBatch(ctx, []models.LogEntry{entry})
}

func (l *logStore) InsertBatch(ctx context.Context, entries []models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := l.s.conn.PrepareBatch(ctx, "INSERT INTO logs")
	if err != nil {
		return fmt.Errorf("preparing log batch: %w", err)
	}

	for _, e := range entries {
		attrs, err := encodeJSON(e.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes: %w", err)
		}
		if err := batch.Append(
			l.s.logSeq.Add(1), e.Timestamp, int8(e.Level), e.Message,
			e.Service, attrs, e.TraceID, e.SpanID); err != nil {
			return fmt.Errorf("appending log entry: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending log batch: %w", err)
	}
	return nil
}

func logPredicates(q storage.LogQuery) ([]string, []any) {
	var preds []string
	var args []any

	if q.Service != "" {
		preds = append(preds, "service = ?")
		args = append(args, q.Service)
	}
	if q.MinLevel != nil {
		preds = append(preds, "level >= ?")
		args = append(args, int8(*q.MinLevel))
	}
	if q.Contains != "" {
		// UTF8 variant so non-ASCII text folds the same way the
		// in-memory store does.
		preds = append(preds, "positionCaseInsensitiveUTF8(message, ?) > 0")
		args = append(args, q.Contains)
	}
	if q.TraceID != "" {
		preds = append(preds, "trace_id = ?")
		args = append(args, q.TraceID)
	}
	if !q.Start.IsZero() {
		preds = append(preds, "timestamp >= ?")
		args = append(args, q.Start)
	}
	if !q.End.IsZero() {
		preds = append(preds, "timestamp < ?")
		args = append(args, q.End)
	}

	return preds, args
}

func whereSQL(preds []string) string {
	if len(preds) == 0 {
		return ""
	}
	clause := " WHERE " + preds[0]
	for _, p := range preds[1:] {
		clause += " AND " + p
	}
	return clause
}

// limitSQL renders pagination; a zero limit means unlimited, which
// ClickHouse expresses as omitting LIMIT entirely.
func limitSQL(limit, offset int) string {
	switch {
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case offset > 0:
		return fmt.Sprintf(" OFFSET %d", offset)
	default:
		return ""
	}
}

func (l *logStore) Query(ctx context.Context, q storage.LogQuery) ([]models.LogEntry, int, error) {
	preds, args := logPredicates(q)
	where := whereSQL(preds)

	var total uint64
	if err := l.s.conn.QueryRow(ctx, "SELECT count() FROM logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting logs: %w", err)
	}

	rows, err := l.s.conn.Query(ctx,
		`SELECT timestamp, level, message, service, attributes, trace_id, span_id
		 FROM logs`+where+` ORDER BY seq`+limitSQL(q.Limit, q.Offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0)
	for rows.Next() {
		var (
			level int8
			attrs string
			e     models.LogEntry
		)
		if err := rows.Scan(&e.Timestamp, &level, &e.Message, &e.Service, &attrs, &e.TraceID, &e.SpanID); err != nil {
			return nil, 0, fmt.Errorf("scanning log row: %w", err)
		}
		e.Level = models.LogLevel(level)
		if err := decodeJSON(attrs, &e.Attributes); err != nil {
			return nil, 0, fmt.Errorf("decoding attributes: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, int(total), rows.Err()
}

func (l *logStore) Count(ctx context.Context) (int, error) {
	var n uint64
	if err := l.s.conn.QueryRow(ctx, "SELECT count() FROM logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting logs: %w", err)
	}
	return int(n), nil
}

func (l *logStore) Clear(ctx context.Context) error {
	if err := l.s.conn.Exec(ctx, "TRUNCATE TABLE logs"); err != nil {
		return fmt.Errorf("clearing logs: %w", err)
	}
	return nil
}

// metricStore implements storage.MetricStore.
type metricStore struct {
	s *Store
}

func (m *metricStore) Insert(ctx context.Context, metric models.Metric) error {
	return m.InsertBatch(ctx, []models.Metric{metric})
}

func (m *metricStore) InsertBatch(ctx context.Context, metrics []models.Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	batch, err := m.s.conn.PrepareBatch(ctx, "INSERT INTO metrics")
	if err != nil {
		return fmt.Errorf("preparing metric batch: %w", err)
	}

	for _, metric := range metrics {
		hist := ""
		if metric.Histogram != nil {
			hist, err = encodeJSON(metric.Histogram)
			if err != nil {
				return fmt.Errorf("encoding histogram: %w", err)
			}
		}
		labels, err := encodeJSON(metric.Labels)
		if err != nil {
			return fmt.Errorf("encoding labels: %w", err)
		}
		if err := batch.Append(
			m.s.metricSeq.Add(1), metric.Name, string(metric.Type), metric.Value,
			hist, metric.Timestamp, labels, metric.Description, metric.Unit); err != nil {
			return fmt.Errorf("appending metric: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending metric batch: %w", err)
	}
	return nil
}

func metricPredicates(q storage.MetricQuery) ([]string, []any) {
	var preds []string
	var args []any

	if q.Name != "" {
		preds = append(preds, "name = ?")
		args = append(args, q.Name)
	}
	if q.Type != "" {
		preds = append(preds, "type = ?")
		args = append(args, string(q.Type))
	}
	if !q.Start.IsZero() {
		preds = append(preds, "timestamp >= ?")
		args = append(args, q.Start)
	}
	if !q.End.IsZero() {
		preds = append(preds, "timestamp < ?")
		args = append(args, q.End)
	}

	return preds, args
}

func (m *metricStore) Query(ctx context.Context, q storage.MetricQuery) ([]models.Metric, int, error) {
	preds, args := metricPredicates(q)
	where := whereSQL(preds)

	var total uint64
	if err := m.s.conn.QueryRow(ctx, "SELECT count() FROM metrics"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting metrics: %w", err)
	}

	metrics, err := m.selectMetrics(ctx, where+" ORDER BY seq"+limitSQL(q.Limit, q.Offset), args)
	if err != nil {
		return nil, 0, err
	}
	return metrics, int(total), nil
}

// Aggregate fetches the filtered set and reduces it in Go, keeping the
// histogram-exclusion behavior identical to the reference store.
func (m *metricStore) Aggregate(ctx context.Context, q storage.MetricQuery, fn storage.AggregateFunc) (float64, int, error) {
	preds, args := metricPredicates(q)
	metrics, err := m.selectMetrics(ctx, whereSQL(preds)+" ORDER BY seq", args)
	if err != nil {
		return 0, 0, err
	}
	return storage.Reduce(metrics, fn)
}

func (m *metricStore) selectMetrics(ctx context.Context, clause string, args []any) ([]models.Metric, error) {
	rows, err := m.s.conn.Query(ctx,
		`SELECT name, type, value, histogram, timestamp, labels, description, unit
		 FROM metrics`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]models.Metric, 0)
	for rows.Next() {
		var (
			typ, hist, labels string
			metric            models.Metric
		)
		if err := rows.Scan(&metric.Name, &typ, &metric.Value, &hist,
			&metric.Timestamp, &labels, &metric.Description, &metric.Unit); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		metric.Type = models.MetricType(typ)
		if hist != "" {
			metric.Histogram = &models.HistogramData{}
			if err := decodeJSON(hist, metric.Histogram); err != nil {
				return nil, fmt.Errorf("decoding histogram: %w", err)
			}
		}
		if err := decodeJSON(labels, &metric.Labels); err != nil {
			return nil, fmt.Errorf("decoding labels: %w", err)
		}
		metrics = append(metrics, metric)
	}

	return metrics, rows.Err()
}

func (m *metricStore) Count(ctx context.Context) (int, error) {
	var n uint64
	if err := m.s.conn.QueryRow(ctx, "SELECT count() FROM metrics").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting metrics: %w", err)
	}
	return int(n), nil
}

func (m *metricStore) Clear(ctx context.Context) error {
	if err := m.s.conn.Exec(ctx, "TRUNCATE TABLE metrics"); err != nil {
		return fmt.Errorf("clearing metrics: %w", err)
	}
	return nil
}

// traceStore implements storage.TraceStore.
type traceStore struct {
	s *Store
}

func (t *traceStore) Insert(ctx context.Context, span models.Span) error {
	return t.InsertBatch(ctx, []models.Span{span})
}

func (t *traceStore) InsertBatch(ctx context.Context, spans []models.Span) error {
	if len(spans) == 0 {
		return nil
	}

	batch, err := t.s.conn.PrepareBatch(ctx, "INSERT INTO spans")
	if err != nil {
		return fmt.Errorf("preparing span batch: %w", err)
	}

	for _, span := range spans {
		attrs, err := encodeJSON(span.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes: %w", err)
		}
		events := ""
		if len(span.Events) > 0 {
			events, err = encodeJSON(span.Events)
			if err != nil {
				return fmt.Errorf("encoding events: %w", err)
			}
		}
		if err := batch.Append(
			t.s.spanSeq.Add(1), span.TraceID, span.SpanID, span.ParentSpanID,
			span.Name, span.Service, string(span.Kind), string(span.Status),
			span.StartTime, span.EndTime, attrs, events); err != nil {
			return fmt.Errorf("appending span: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending span batch: %w", err)
	}
	return nil
}

func (t *traceStore) Query(ctx context.Context, q storage.TraceQuery) ([]models.Trace, int, error) {
	spans, err := t.selectSpans(ctx, "", nil)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]models.Trace, 0)
	for _, trace := range storage.GroupSpans(spans) {
		if storage.MatchTrace(trace, q) {
			matched = append(matched, *trace)
		}
	}

	total := len(matched)
	if q.Offset >= len(matched) {
		return []models.Trace{}, total, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	return matched, total, nil
}

func (t *traceStore) GetTrace(ctx context.Context, traceID string) (*models.Trace, error) {
	spans, err := t.selectSpans(ctx, " WHERE trace_id = ?", []any{traceID})
	if err != nil {
		return nil, err
	}

	trace := models.AssembleTrace(spans)
	if trace == nil {
		return nil, fmt.Errorf("trace %s: %w", traceID, storage.ErrNotFound)
	}
	return trace, nil
}

func (t *traceStore) selectSpans(ctx context.Context, where string, args []any) ([]models.Span, error) {
	rows, err := t.s.conn.Query(ctx,
		`SELECT trace_id, span_id, parent_span_id, name, service, kind, status,
		        start_time, end_time, attributes, events
		 FROM spans`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying spans: %w", err)
	}
	defer rows.Close()

	var spans []models.Span
	for rows.Next() {
		var (
			kind, status, attrs, events string
			span                        models.Span
		)
		if err := rows.Scan(&span.TraceID, &span.SpanID, &span.ParentSpanID,
			&span.Name, &span.Service, &kind, &status,
			&span.StartTime, &span.EndTime, &attrs, &events); err != nil {
			return nil, fmt.Errorf("scanning span row: %w", err)
		}
		span.Kind = models.SpanKind(kind)
		span.Status = models.SpanStatus(status)
		if err := decodeJSON(attrs, &span.Attributes); err != nil {
			return nil, fmt.Errorf("decoding attributes: %w", err)
		}
		if err := decodeJSON(events, &span.Events); err != nil {
			return nil, fmt.Errorf("decoding events: %w", err)
		}
		spans = append(spans, span)
	}

	return spans, rows.Err()
}

func (t *traceStore) SpanCount(ctx context.Context) (int, error) {
	var n uint64
	if err := t.s.conn.QueryRow(ctx, "SELECT count() FROM spans").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting spans: %w", err)
	}
	return int(n), nil
}

func (t *traceStore) TraceCount(ctx context.Context) (int, error) {
	var n uint64
	if err := t.s.conn.QueryRow(ctx, "SELECT uniqExact(trace_id) FROM spans").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting traces: %w", err)
	}
	return int(n), nil
}

func (t *traceStore) Clear(ctx context.Context) error {
	if err := t.s.conn.Exec(ctx, "TRUNCATE TABLE spans"); err != nil {
		return fmt.Errorf("clearing spans: %w", err)
	}
	return nil
}
