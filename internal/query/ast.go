// Package query implements the log query language: a SQL-like dialect
// parsed into an AST and executed against a log store.
package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Source is the entity kind a query reads from.
type Source string

const (
	SourceLogs    Source = "logs"
	SourceMetrics Source = "metrics"
	SourceTraces  Source = "traces"
)

// ParseSource converts a source name (any case) to a Source.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(s) {
	case "logs":
		return SourceLogs, nil
	case "metrics":
		return SourceMetrics, nil
	case "traces":
		return SourceTraces, nil
	default:
		return "", fmt.Errorf("unknown source %q", s)
	}
}

// Operator is a comparison operator in a WHERE condition.
type Operator string

const (
	OpEq         Operator = "="
	OpNeq        Operator = "!="
	OpLt         Operator = "<"
	OpLte        Operator = "<="
	OpGt         Operator = ">"
	OpGte        Operator = ">="
	OpContains   Operator = "CONTAINS"
	OpStartsWith Operator = "STARTS WITH"
	OpEndsWith   Operator = "ENDS WITH"
)

// LogicalOp combines two WHERE clauses.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
)

// ValueKind discriminates a literal Value.
type ValueKind int

const (
	ValString ValueKind = iota
	ValInt
	ValFloat
	ValBool
)

// Value is a literal in a WHERE condition.
type Value struct {
	Kind  ValueKind `json:"kind"`
	Str   string    `json:"str,omitempty"`
	Int   int64     `json:"int,omitempty"`
	Float float64   `json:"float,omitempty"`
	Bool  bool      `json:"bool,omitempty"`
}

// String renders the literal back to query syntax.
func (v Value) String() string {
	switch v.Kind {
	case ValString:
		return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
	case ValInt:
		return strconv.FormatInt(v.Int, 10)
	case ValFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// WhereClause is a node in the WHERE expression tree: a leaf Condition,
// a binary Combined node, or a Grouped wrapper.
type WhereClause interface {
	whereClause() // marker method
	String() string
}

// Condition is a leaf comparison: field, operator, literal.
type Condition struct {
	Field string   `json:"field"`
	Op    Operator `json:"op"`
	Value Value    `json:"value"`
}

func (Condition) whereClause() {}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, c.Value)
}

// Combined joins two clauses with AND or OR.
type Combined struct {
	Left  WhereClause `json:"left"`
	Op    LogicalOp   `json:"op"`
	Right WhereClause `json:"right"`
}

func (Combined) whereClause() {}

func (c Combined) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

// Grouped wraps a parenthesized sub-expression.
type Grouped struct {
	Inner WhereClause `json:"inner"`
}

func (Grouped) whereClause() {}

func (g Grouped) String() string {
	return "(" + g.Inner.String() + ")"
}

// SortDirection orders an ORDER BY clause.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// OrderBy names the sort field and direction.
type OrderBy struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Query is the parsed representation of a query string. It is
// JSON-serializable so callers can echo what was understood.
type Query struct {
	Source  Source      `json:"source"`
	Where   WhereClause `json:"where,omitempty"`
	OrderBy *OrderBy    `json:"order_by,omitempty"`
	Limit   *uint64     `json:"limit,omitempty"`
	Offset  *uint64     `json:"offset,omitempty"`
}

// String renders the query back to text. Parsing the rendered form
// yields an equivalent AST.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(string(q.Source))

	if q.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(q.Where.String())
	}
	if q.OrderBy != nil {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy.Field)
		b.WriteString(" ")
		b.WriteString(string(q.OrderBy.Direction))
	}
	if q.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.FormatUint(*q.Limit, 10))
	}
	if q.Offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.FormatUint(*q.Offset, 10))
	}
	return b.String()
}
