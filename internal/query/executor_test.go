package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hklund/signaldb/internal/storage/memory"
	"github.com/hklund/signaldb/pkg/models"
)

func newTestStore(t *testing.T) *memory.LogStore {
	t.Helper()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	entries := []models.LogEntry{
		{Timestamp: base, Level: models.LevelInfo, Message: "request received", Service: "api"},
		{Timestamp: base.Add(time.Second), Level: models.LevelError, Message: "payment charge failed", Service: "payment",
			Attributes: map[string]models.AttrValue{"retries": models.IntValue(3)}},
		{Timestamp: base.Add(2 * time.Second), Level: models.LevelWarn, Message: "retry scheduled", Service: "payment"},
		{Timestamp: base.Add(3 * time.Second), Level: models.LevelError, Message: "Timeout waiting for upstream", Service: "api",
			Attributes: map[string]models.AttrValue{"retries": models.IntValue(1), "cached": models.BoolValue(false)}},
		{Timestamp: base.Add(4 * time.Second), Level: models.LevelDebug, Message: "cache hit", Service: "api"},
	}

	s := memory.NewLogStore()
	if err := s.InsertBatch(context.Background(), entries); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	return s
}

func run(t *testing.T, store *memory.LogStore, input string) ([]models.LogEntry, int) {
	t.Helper()

	q, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", input, err)
	}
	items, total, err := Execute(context.Background(), q, store)
	if err != nil {
		t.Fatalf("Execute(%q) failed: %v", input, err)
	}
	return items, total
}

func TestExecuteSelectAll(t *testing.T) {
	s := newTestStore(t)
	items, total := run(t, s, "SELECT * FROM logs")
	if total != 5 || len(items) != 5 {
		t.Errorf("expected all 5 entries, got %d (total %d)", len(items), total)
	}
}

func TestExecuteWhereEquality(t *testing.T) {
	s := newTestStore(t)
	items, total := run(t, s, "SELECT * FROM logs WHERE service = 'payment'")
	if total != 2 {
		t.Errorf("expected 2 payment entries, got %d", total)
	}
	for _, e := range items {
		if e.Service != "payment" {
			t.Errorf("unexpected service %q in results", e.Service)
		}
	}
}

func TestExecuteLevelSeverityRank(t *testing.T) {
	s := newTestStore(t)

	_, total := run(t, s, "SELECT * FROM logs WHERE level >= 'warn'")
	if total != 3 {
		t.Errorf("expected 3 entries at warn or above, got %d", total)
	}

	_, total = run(t, s, "SELECT * FROM logs WHERE level = 'error'")
	if total != 2 {
		t.Errorf("expected 2 error entries, got %d", total)
	}

	_, total = run(t, s, "SELECT * FROM logs WHERE level < 'info'")
	if total != 1 {
		t.Errorf("expected 1 entry below info, got %d", total)
	}
}

func TestExecuteContainsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	items, total := run(t, s, "SELECT * FROM logs WHERE message CONTAINS 'TIMEOUT'")
	if total != 1 || items[0].Message != "Timeout waiting for upstream" {
		t.Errorf("expected the timeout entry, got total=%d items=%+v", total, items)
	}
}

func TestExecuteLogicalOperators(t *testing.T) {
	s := newTestStore(t)

	_, total := run(t, s, "SELECT * FROM logs WHERE level = 'error' AND service = 'api'")
	if total != 1 {
		t.Errorf("AND: expected 1 entry, got %d", total)
	}

	_, total = run(t, s, "SELECT * FROM logs WHERE level = 'debug' OR service = 'payment'")
	if total != 3 {
		t.Errorf("OR: expected 3 entries, got %d", total)
	}

	_, total = run(t, s, "SELECT * FROM logs WHERE (level = 'error' OR level = 'warn') AND service = 'payment'")
	if total != 2 {
		t.Errorf("grouped: expected 2 entries, got %d", total)
	}
}

func TestExecuteAttributes(t *testing.T) {
	s := newTestStore(t)

	_, total := run(t, s, "SELECT * FROM logs WHERE retries >= 2")
	if total != 1 {
		t.Errorf("expected 1 entry with retries >= 2, got %d", total)
	}

	// Type mismatch is false, not an error.
	_, total = run(t, s, "SELECT * FROM logs WHERE retries = 'three'")
	if total != 0 {
		t.Errorf("expected 0 entries for mismatched type, got %d", total)
	}

	// Absent attribute: equality false, inequality true.
	_, total = run(t, s, "SELECT * FROM logs WHERE cached = true")
	if total != 0 {
		t.Errorf("expected 0 entries with cached = true, got %d", total)
	}
	_, total = run(t, s, "SELECT * FROM logs WHERE cached != true")
	if total != 5 {
		t.Errorf("expected all 5 entries for cached != true, got %d", total)
	}
}

func TestExecuteOrderBy(t *testing.T) {
	s := newTestStore(t)

	items, _ := run(t, s, "SELECT * FROM logs ORDER BY timestamp DESC")
	for i := 1; i < len(items); i++ {
		if items[i].Timestamp.After(items[i-1].Timestamp) {
			t.Fatalf("results not in descending timestamp order: %v after %v",
				items[i].Timestamp, items[i-1].Timestamp)
		}
	}

	items, _ = run(t, s, "SELECT * FROM logs ORDER BY service ASC")
	for i := 1; i < len(items); i++ {
		if items[i].Service < items[i-1].Service {
			t.Fatalf("results not in ascending service order")
		}
	}

	// Equal sort keys keep insertion order.
	items, _ = run(t, s, "SELECT * FROM logs WHERE service = 'api' ORDER BY service ASC")
	if len(items) != 3 || items[0].Message != "request received" || items[2].Message != "cache hit" {
		t.Errorf("stable sort broke insertion order of ties: %+v", items)
	}
}

func TestExecutePagination(t *testing.T) {
	s := newTestStore(t)

	items, total := run(t, s, "SELECT * FROM logs LIMIT 2 OFFSET 1")
	if total != 5 {
		t.Errorf("expected total 5 before pagination, got %d", total)
	}
	if len(items) != 2 || items[0].Message != "payment charge failed" {
		t.Errorf("unexpected page: %+v", items)
	}

	// Offset past the end yields an empty page, not an error.
	items, total = run(t, s, "SELECT * FROM logs OFFSET 100")
	if total != 5 || len(items) != 0 {
		t.Errorf("expected empty page with total 5, got %d items (total %d)", len(items), total)
	}

	// LIMIT 0 returns nothing but still reports the total.
	items, total = run(t, s, "SELECT * FROM logs LIMIT 0")
	if total != 5 || len(items) != 0 {
		t.Errorf("expected LIMIT 0 to return no rows with total 5, got %d (total %d)", len(items), total)
	}
}

func TestExecutePaginationOversized(t *testing.T) {
	s := newTestStore(t)

	// Values beyond the int range must saturate, not wrap negative and
	// panic on the slice bounds.
	items, total := run(t, s, "SELECT * FROM logs OFFSET 18446744073709551615")
	if total != 5 || len(items) != 0 {
		t.Errorf("expected empty page with total 5, got %d items (total %d)", len(items), total)
	}

	items, total = run(t, s, "SELECT * FROM logs LIMIT 18446744073709551615")
	if total != 5 || len(items) != 5 {
		t.Errorf("expected all 5 entries under oversized limit, got %d (total %d)", len(items), total)
	}

	items, total = run(t, s, "SELECT * FROM logs LIMIT 18446744073709551615 OFFSET 3")
	if total != 5 || len(items) != 2 {
		t.Errorf("expected 2 remaining entries, got %d (total %d)", len(items), total)
	}
}

func TestExecuteUnsupportedSource(t *testing.T) {
	s := newTestStore(t)

	for _, input := range []string{"SELECT * FROM metrics", "SELECT * FROM traces"} {
		q, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", input, err)
		}
		if _, _, err := Execute(context.Background(), q, s); !errors.Is(err, ErrUnsupportedSource) {
			t.Errorf("Execute(%q): expected ErrUnsupportedSource, got %v", input, err)
		}
	}
}

func TestExecuteTimestampComparison(t *testing.T) {
	s := newTestStore(t)

	_, total := run(t, s, "SELECT * FROM logs WHERE timestamp >= '2026-08-01T10:00:02Z'")
	if total != 3 {
		t.Errorf("expected 3 entries at or after 10:00:02, got %d", total)
	}

	// Unix seconds literal.
	cut := time.Date(2026, 8, 1, 10, 0, 2, 0, time.UTC).Unix()
	q, err := Parse("SELECT * FROM logs WHERE timestamp < 0")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cond := q.Where.(Condition)
	cond.Value.Int = cut
	q.Where = cond
	items, _, err := Execute(context.Background(), q, s)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 entries before unix cutoff, got %d", len(items))
	}
}
