package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hklund/signaldb/internal/storage"
	"github.com/hklund/signaldb/pkg/models"
)

// Execution errors. ErrUnknownField is reserved for a future strict mode:
// the executor currently treats unknown fields permissively (equality-style
// operators false, != true) rather than raising it.
var (
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrUnknownField      = errors.New("unknown field")
	ErrTypeMismatch      = errors.New("type mismatch")
)

// Execute evaluates a parsed query against a log store. It returns the
// matching page of entries plus the total match count before offset/limit.
// Only the logs source is executable; metrics and traces use structured
// queries against their own stores.
func Execute(ctx context.Context, q *Query, store storage.LogStore) ([]models.LogEntry, int, error) {
	if q.Source != SourceLogs {
		return nil, 0, fmt.Errorf("source %q: %w", q.Source, ErrUnsupportedSource)
	}

	// Fetch everything; the WHERE tree is evaluated here, not in the store.
	all, _, err := store.Query(ctx, storage.LogQuery{})
	if err != nil {
		return nil, 0, fmt.Errorf("querying log store: %w", err)
	}

	filtered := all
	if q.Where != nil {
		filtered = make([]models.LogEntry, 0, len(all))
		for _, entry := range all {
			if evalClause(q.Where, entry) {
				filtered = append(filtered, entry)
			}
		}
	}

	if q.OrderBy != nil {
		sortEntries(filtered, q.OrderBy)
	}

	total := len(filtered)

	// Offsets and limits come in as uint64 and may exceed the platform
	// int range; compare in uint64 space so oversized values saturate
	// instead of wrapping negative.
	if q.Offset != nil {
		if *q.Offset >= uint64(len(filtered)) {
			return []models.LogEntry{}, total, nil
		}
		filtered = filtered[*q.Offset:]
	}

	if q.Limit != nil && *q.Limit < uint64(len(filtered)) {
		filtered = filtered[:*q.Limit]
	}

	return filtered, total, nil
}

// evalClause evaluates a WHERE node against one entry. Combined nodes
// evaluate both sides unconditionally.
func evalClause(clause WhereClause, entry models.LogEntry) bool {
	switch c := clause.(type) {
	case Condition:
		return evalCondition(c, entry)
	case Combined:
		left := evalClause(c.Left, entry)
		right := evalClause(c.Right, entry)
		if c.Op == LogicalAnd {
			return left && right
		}
		return left || right
	case Grouped:
		return evalClause(c.Inner, entry)
	default:
		return false
	}
}

// evalCondition resolves the condition's field: recognized structural
// fields get dedicated comparison logic, anything else falls back to the
// entry's attribute map.
func evalCondition(c Condition, entry models.LogEntry) bool {
	switch strings.ToLower(c.Field) {
	case "level":
		return evalLevel(c.Op, entry.Level, c.Value)
	case "service":
		return evalString(c.Op, entry.Service, c.Value)
	case "message":
		return evalString(c.Op, entry.Message, c.Value)
	case "trace_id":
		return evalString(c.Op, entry.TraceID, c.Value)
	case "span_id":
		return evalString(c.Op, entry.SpanID, c.Value)
	case "timestamp":
		return evalTimestamp(c.Op, entry.Timestamp, c.Value)
	default:
		return evalAttribute(c.Op, entry.Attributes, c.Field, c.Value)
	}
}

// evalLevel compares by severity rank, so level >= 'warn' works.
func evalLevel(op Operator, level models.LogLevel, v Value) bool {
	if v.Kind != ValString {
		return false
	}
	want, err := models.ParseLevel(v.Str)
	if err != nil {
		return op == OpNeq
	}

	switch op {
	case OpEq:
		return level == want
	case OpNeq:
		return level != want
	case OpLt:
		return level < want
	case OpLte:
		return level <= want
	case OpGt:
		return level > want
	case OpGte:
		return level >= want
	case OpContains:
		return strings.Contains(level.String(), strings.ToLower(v.Str))
	case OpStartsWith:
		return strings.HasPrefix(level.String(), strings.ToLower(v.Str))
	case OpEndsWith:
		return strings.HasSuffix(level.String(), strings.ToLower(v.Str))
	default:
		return false
	}
}

// evalString compares strings: case-insensitive for equality, contains,
// starts-with and ends-with; case-sensitive ordinal for ordering operators.
func evalString(op Operator, field string, v Value) bool {
	if v.Kind != ValString {
		return false
	}

	switch op {
	case OpEq:
		return strings.EqualFold(field, v.Str)
	case OpNeq:
		return !strings.EqualFold(field, v.Str)
	case OpLt:
		return field < v.Str
	case OpLte:
		return field <= v.Str
	case OpGt:
		return field > v.Str
	case OpGte:
		return field >= v.Str
	case OpContains:
		return strings.Contains(strings.ToLower(field), strings.ToLower(v.Str))
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(field), strings.ToLower(v.Str))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(field), strings.ToLower(v.Str))
	default:
		return false
	}
}

// evalTimestamp compares against an RFC 3339 string literal or a Unix
// seconds integer. Unparseable literals make the condition false.
func evalTimestamp(op Operator, ts time.Time, v Value) bool {
	var want time.Time
	switch v.Kind {
	case ValString:
		parsed, err := time.Parse(time.RFC3339, v.Str)
		if err != nil {
			return false
		}
		want = parsed
	case ValInt:
		want = time.Unix(v.Int, 0).UTC()
	default:
		return false
	}

	switch op {
	case OpEq:
		return ts.Equal(want)
	case OpNeq:
		return !ts.Equal(want)
	case OpLt:
		return ts.Before(want)
	case OpLte:
		return !ts.After(want)
	case OpGt:
		return ts.After(want)
	case OpGte:
		return !ts.Before(want)
	default:
		return false
	}
}

// evalAttribute looks the field up in the attribute map, comparing against
// whichever stored type matches the literal's type. A type mismatch makes
// the condition false, not an error; an absent attribute makes equality
// style operators false and != true.
func evalAttribute(op Operator, attrs map[string]models.AttrValue, field string, v Value) bool {
	attr, ok := attrs[field]
	if !ok {
		return op == OpNeq
	}

	switch v.Kind {
	case ValString:
		if attr.Kind != models.AttrString {
			return false
		}
		return evalString(op, attr.Str, v)

	case ValInt:
		if attr.Kind != models.AttrInt {
			return false
		}
		return compareOrdered(op, attr.Int, v.Int)

	case ValFloat:
		if attr.Kind != models.AttrFloat {
			return false
		}
		return compareOrdered(op, attr.Float, v.Float)

	case ValBool:
		if attr.Kind != models.AttrBool {
			return false
		}
		switch op {
		case OpEq:
			return attr.Bool == v.Bool
		case OpNeq:
			return attr.Bool != v.Bool
		default:
			return false
		}

	default:
		return false
	}
}

// compareOrdered applies a relational operator to two ordered values.
// Substring operators on numbers are false.
func compareOrdered[T int64 | float64](op Operator, a, b T) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNeq:
		return a != b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	default:
		return false
	}
}

// sortEntries stable-sorts by the named field. Unrecognized fields
// compare as equal, leaving the original order intact. For descending
// order the comparator is inverted, preserving stability of ties.
func sortEntries(entries []models.LogEntry, orderBy *OrderBy) {
	less := lessFunc(orderBy.Field)
	if less == nil {
		return
	}

	if orderBy.Direction == SortDesc {
		asc := less
		less = func(a, b models.LogEntry) bool { return asc(b, a) }
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return less(entries[i], entries[j])
	})
}

// lessFunc returns the ascending comparator for a sort field, or nil
// for unrecognized fields.
func lessFunc(field string) func(a, b models.LogEntry) bool {
	switch strings.ToLower(field) {
	case "timestamp":
		return func(a, b models.LogEntry) bool { return a.Timestamp.Before(b.Timestamp) }
	case "level":
		return func(a, b models.LogEntry) bool { return a.Level < b.Level }
	case "service":
		return func(a, b models.LogEntry) bool { return a.Service < b.Service }
	case "message":
		return func(a, b models.LogEntry) bool { return a.Message < b.Message }
	default:
		return nil
	}
}
