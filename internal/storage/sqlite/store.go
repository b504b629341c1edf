// Package sqlite provides a SQLite-backed implementation of the store
// contracts, for single-node deployments that need data to survive
// restarts.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hklund/signaldb/internal/storage"
	"github.com/hklund/signaldb/pkg/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.up.sql
var migrationSQL string

// Config holds SQLite store configuration.
type Config struct {
	DBPath string
}

// Store is a SQLite-backed telemetry store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the database at cfg.DBPath and runs migrations.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("sqlite store ready", "path", cfg.DBPath)
	return &Store{db: db, logger: logger}, nil
}

// Logs returns the log store view.
func (s *Store) Logs() storage.LogStore { return &logStore{s} }

// Metrics returns the metric store view.
func (s *Store) Metrics() storage.MetricStore { return &metricStore{s} }

// Traces returns the trace store view.
func (s *Store) Traces() storage.TraceStore { return &traceStore{s} }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// marshalJSON serializes v to a nullable TEXT column value.
func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// whereSQL joins predicates into a WHERE clause, empty when none apply.
func whereSQL(preds []string) string {
	if len(preds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(preds, " AND ")
}

// limitSQL renders pagination. SQLite treats LIMIT -1 as unlimited.
func limitSQL(limit, offset int) string {
	if limit <= 0 {
		limit = -1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

// logStore implements storage.LogStore on the shared database.
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

	tx, err := l.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO logs (timestamp, level, message, service, attributes, trace_id, span_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		attrs, err := marshalJSON(e.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.Timestamp.UnixNano(), int(e.Level), e.Message, e.Service,
			attrs, e.TraceID, e.SpanID); err != nil {
			return fmt.Errorf("inserting log entry: %w", err)
		}
	}

	return tx.Commit()
}

// logPredicates translates the filter contract into SQL predicates.
func logPredicates(q storage.LogQuery) ([]string, []any) {
	var preds []string
	var args []any

	if q.Service != "" {
		preds = append(preds, "service = ?")
		args = append(args, q.Service)
	}
	if q.MinLevel != nil {
		preds = append(preds, "level >= ?")
		args = append(args, int(*q.MinLevel))
	}
	if q.Contains != "" {
		// The needle is lowered in Go so it folds Unicode correctly.
		// SQLite's lower() only folds ASCII on the stored message, so
		// matching against non-ASCII message text stays ASCII-cased.
		preds = append(preds, "instr(lower(message), ?) > 0")
		args = append(args, strings.ToLower(q.Contains))
	}
	if q.TraceID != "" {
		preds = append(preds, "trace_id = ?")
		args = append(args, q.TraceID)
	}
	if !q.Start.IsZero() {
		preds = append(preds, "timestamp >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		preds = append(preds, "timestamp < ?")
		args = append(args, q.End.UnixNano())
	}

	return preds, args
}

func (l *logStore) Query(ctx context.Context, q storage.LogQuery) ([]models.LogEntry, int, error) {
	preds, args := logPredicates(q)
	where := whereSQL(preds)

	var total int
	if err := l.s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting logs: %w", err)
	}

	rows, err := l.s.db.QueryContext(ctx,
		`SELECT timestamp, level, message, service, attributes, trace_id, span_id
		 FROM logs`+where+` ORDER BY id`+limitSQL(q.Limit, q.Offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0)
	for rows.Next() {
		var (
			ts    int64
			level int
			attrs sql.NullString
			e     models.LogEntry
		)
		if err := rows.Scan(&ts, &level, &e.Message, &e.Service, &attrs, &e.TraceID, &e.SpanID); err != nil {
			return nil, 0, fmt.Errorf("scanning log row: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Level = models.LogLevel(level)
		if attrs.Valid {
			if err := json.Unmarshal([]byte(attrs.String), &e.Attributes); err != nil {
				return nil, 0, fmt.Errorf("decoding attributes: %w", err)
			}
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

func (l *logStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting logs: %w", err)
	}
	return n, nil
}

func (l *logStore) Clear(ctx context.Context) error {
	if _, err := l.s.db.ExecContext(ctx, "DELETE FROM logs"); err != nil {
		return fmt.Errorf("clearing logs: %w", err)
	}
	return nil
}

// metricStore implements storage.MetricStore on the shared database.
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

	tx, err := m.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics (name, type, value, histogram, timestamp, labels, description, unit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, metric := range metrics {
		var hist sql.NullString
		if metric.Histogram != nil {
			hist, err = marshalJSON(metric.Histogram)
			if err != nil {
				return fmt.Errorf("encoding histogram: %w", err)
			}
		}
		labels, err := marshalJSON(metric.Labels)
		if err != nil {
			return fmt.Errorf("encoding labels: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			metric.Name, string(metric.Type), metric.Value, hist,
			metric.Timestamp.UnixNano(), labels, metric.Description, metric.Unit); err != nil {
			return fmt.Errorf("inserting metric: %w", err)
		}
	}

	return tx.Commit()
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
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		preds = append(preds, "timestamp < ?")
		args = append(args, q.End.UnixNano())
	}

	return preds, args
}

func (m *metricStore) Query(ctx context.Context, q storage.MetricQuery) ([]models.Metric, int, error) {
	preds, args := metricPredicates(q)
	where := whereSQL(preds)

	var total int
	if err := m.s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metrics"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting metrics: %w", err)
	}

	metrics, err := m.selectMetrics(ctx, where+" ORDER BY id"+limitSQL(q.Limit, q.Offset), args)
	if err != nil {
		return nil, 0, err
	}
	return metrics, total, nil
}

// Aggregate fetches the filtered set and reduces it in Go, so histogram
// exclusion behaves exactly like the reference store.
func (m *metricStore) Aggregate(ctx context.Context, q storage.MetricQuery, fn storage.AggregateFunc) (float64, int, error) {
	preds, args := metricPredicates(q)
	metrics, err := m.selectMetrics(ctx, whereSQL(preds)+" ORDER BY id", args)
	if err != nil {
		return 0, 0, err
	}
	return storage.Reduce(metrics, fn)
}

func (m *metricStore) selectMetrics(ctx context.Context, clause string, args []any) ([]models.Metric, error) {
	rows, err := m.s.db.QueryContext(ctx,
		`SELECT name, type, value, histogram, timestamp, labels, description, unit
		 FROM metrics`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]models.Metric, 0)
	for rows.Next() {
		var (
			typ    string
			hist   sql.NullString
			ts     int64
			labels sql.NullString
			metric models.Metric
		)
		if err := rows.Scan(&metric.Name, &typ, &metric.Value, &hist, &ts,
			&labels, &metric.Description, &metric.Unit); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		metric.Type = models.MetricType(typ)
		metric.Timestamp = time.Unix(0, ts).UTC()
		if hist.Valid {
			metric.Histogram = &models.HistogramData{}
			if err := json.Unmarshal([]byte(hist.String), metric.Histogram); err != nil {
				return nil, fmt.Errorf("decoding histogram: %w", err)
			}
		}
		if labels.Valid {
			if err := json.Unmarshal([]byte(labels.String), &metric.Labels); err != nil {
				return nil, fmt.Errorf("decoding labels: %w", err)
			}
		}
		metrics = append(metrics, metric)
	}

	return metrics, rows.Err()
}

func (m *metricStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := m.s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM metrics").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting metrics: %w", err)
	}
	return n, nil
}

func (m *metricStore) Clear(ctx context.Context) error {
	if _, err := m.s.db.ExecContext(ctx, "DELETE FROM metrics"); err != nil {
		return fmt.Errorf("clearing metrics: %w", err)
	}
	return nil
}

// traceStore implements storage.TraceStore on the shared database.
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

	tx, err := t.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO spans (trace_id, span_id, parent_span_id, name, service, kind, status,
		                    start_time, end_time, attributes, events)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, span := range spans {
		attrs, err := marshalJSON(span.Attributes)
		if err != nil {
			return fmt.Errorf("encoding attributes: %w", err)
		}
		var events sql.NullString
		if len(span.Events) > 0 {
			events, err = marshalJSON(span.Events)
			if err != nil {
				return fmt.Errorf("encoding events: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			span.TraceID, span.SpanID, span.ParentSpanID, span.Name, span.Service,
			string(span.Kind), string(span.Status),
			span.StartTime.UnixNano(), span.EndTime.UnixNano(), attrs, events); err != nil {
			return fmt.Errorf("inserting span: %w", err)
		}
	}

	return tx.Commit()
}

// Query loads all spans in insertion order and assembles and filters
// traces in Go: trace-level predicates (duration, any-span service) are
// derived values, so filtering happens after assembly.
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
	rows, err := t.s.db.QueryContext(ctx,
		`SELECT trace_id, span_id, parent_span_id, name, service, kind, status,
		        start_time, end_time, attributes, events
		 FROM spans`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying spans: %w", err)
	}
	defer rows.Close()

	var spans []models.Span
	for rows.Next() {
		var (
			kind, status   string
			start, end     int64
			attrs, events  sql.NullString
			span           models.Span
		)
		if err := rows.Scan(&span.TraceID, &span.SpanID, &span.ParentSpanID,
			&span.Name, &span.Service, &kind, &status, &start, &end, &attrs, &events); err != nil {
			return nil, fmt.Errorf("scanning span row: %w", err)
		}
		span.Kind = models.SpanKind(kind)
		span.Status = models.SpanStatus(status)
		span.StartTime = time.Unix(0, start).UTC()
		span.EndTime = time.Unix(0, end).UTC()
		if attrs.Valid {
			if err := json.Unmarshal([]byte(attrs.String), &span.Attributes); err != nil {
				return nil, fmt.Errorf("decoding attributes: %w", err)
			}
		}
		if events.Valid {
			if err := json.Unmarshal([]byte(events.String), &span.Events); err != nil {
				return nil, fmt.Errorf("decoding events: %w", err)
			}
		}
		spans = append(spans, span)
	}

	return spans, rows.Err()
}

func (t *traceStore) SpanCount(ctx context.Context) (int, error) {
	var n int
	if err := t.s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM spans").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting spans: %w", err)
	}
	return n, nil
}

func (t *traceStore) TraceCount(ctx context.Context) (int, error) {
	var n int
	if err := t.s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT trace_id) FROM spans").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting traces: %w", err)
	}
	return n, nil
}

func (t *traceStore) Clear(ctx context.Context) error {
	if _, err := t.s.db.ExecContext(ctx, "DELETE FROM spans"); err != nil {
		return fmt.Errorf("clearing spans: %w", err)
	}
	return nil
}
