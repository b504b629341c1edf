package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyQuery is returned for blank or whitespace-only input.
var ErrEmptyQuery = errors.New("empty query")

// ParseError is a syntax error with the offending fragment of the input.
type ParseError struct {
	Pos      int
	Fragment string
	Msg      string
}

func (e *ParseError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("syntax error at %q (position %d): %s", e.Fragment, e.Pos, e.Msg)
}

// parser parses query text into an AST.
type parser struct {
	lexer   *lexer
	current token
}

// Parse parses the input string and returns the query AST.
// Keywords are case-insensitive. The parser performs no semantic
// validation beyond the source name; field checks belong to the executor.
func Parse(input string) (*Query, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyQuery
	}

	p := &parser{lexer: newLexer(input)}
	p.advance()

	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}

	// A valid query followed by unconsumed text is an error.
	if p.current.typ != tokenEOF {
		return nil, p.errorf("unexpected trailing content")
	}
	return q, nil
}

func (p *parser) advance() {
	p.current = p.lexer.next()
}

// errorf builds a ParseError pointing at the current token.
func (p *parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{
		Pos:      p.current.pos,
		Fragment: p.current.value,
		Msg:      fmt.Sprintf(format, args...),
	}
}

// expectKeyword consumes the given keyword or fails.
func (p *parser) expectKeyword(kw string) error {
	if !p.current.isKeyword(kw) {
		return p.errorf("expected %s", kw)
	}
	p.advance()
	return nil
}

// parseQuery parses:
// SELECT * FROM <source> [WHERE <expr>] [ORDER BY <field> [ASC|DESC]]
// [LIMIT <n>] [OFFSET <n>]
func (p *parser) parseQuery() (*Query, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	if p.current.typ != tokenStar {
		return nil, p.errorf("expected *")
	}
	p.advance()
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}

	if p.current.typ != tokenIdent {
		return nil, p.errorf("expected source name")
	}
	source, err := ParseSource(p.current.value)
	if err != nil {
		return nil, p.errorf("%v", err)
	}
	p.advance()

	q := &Query{Source: source}

	if p.current.isKeyword("WHERE") {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		q.Where = where
	}

	if p.current.isKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if p.current.typ != tokenIdent {
			return nil, p.errorf("expected sort field")
		}
		orderBy := &OrderBy{Field: p.current.value, Direction: SortAsc}
		p.advance()

		if p.current.isKeyword("ASC") {
			p.advance()
		} else if p.current.isKeyword("DESC") {
			orderBy.Direction = SortDesc
			p.advance()
		}
		q.OrderBy = orderBy
	}

	if p.current.isKeyword("LIMIT") {
		p.advance()
		n, err := p.parseUint("LIMIT")
		if err != nil {
			return nil, err
		}
		q.Limit = &n
	}

	if p.current.isKeyword("OFFSET") {
		p.advance()
		n, err := p.parseUint("OFFSET")
		if err != nil {
			return nil, err
		}
		q.Offset = &n
	}

	return q, nil
}

// parseUint parses a non-negative integer following LIMIT or OFFSET.
func (p *parser) parseUint(clause string) (uint64, error) {
	if p.current.typ != tokenNumber {
		return 0, p.errorf("expected integer after %s", clause)
	}
	n, err := strconv.ParseUint(p.current.value, 10, 64)
	if err != nil {
		return 0, p.errorf("invalid %s value", clause)
	}
	p.advance()
	return n, nil
}

// parseExpr parses conditions combined with AND/OR. Both operators bind
// left-associatively with no precedence between them; only parentheses
// group tighter.
func (p *parser) parseExpr() (WhereClause, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.current.isKeyword("AND") || p.current.isKeyword("OR") {
		op := LogicalAnd
		if p.current.isKeyword("OR") {
			op = LogicalOr
		}
		p.advance()

		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = Combined{Left: left, Op: op, Right: right}
	}

	return left, nil
}

// parsePrimary parses a parenthesized sub-expression or a single
// field-operator-literal condition.
func (p *parser) parsePrimary() (WhereClause, error) {
	if p.current.typ == tokenLParen {
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.current.typ != tokenRParen {
			return nil, p.errorf("expected )")
		}
		p.advance()
		return Grouped{Inner: inner}, nil
	}

	if p.current.typ != tokenIdent {
		return nil, p.errorf("expected field name")
	}
	field := p.current.value
	p.advance()

	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}

	value, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}

	return Condition{Field: field, Op: op, Value: value}, nil
}

// parseOperator consumes a comparison operator: a symbolic one or the
// CONTAINS / STARTS WITH / ENDS WITH keywords.
func (p *parser) parseOperator() (Operator, error) {
	if p.current.typ == tokenOp {
		op := Operator(p.current.value)
		p.advance()
		return op, nil
	}

	switch {
	case p.current.isKeyword("CONTAINS"):
		p.advance()
		return OpContains, nil
	case p.current.isKeyword("STARTS"):
		p.advance()
		if err := p.expectKeyword("WITH"); err != nil {
			return "", err
		}
		return OpStartsWith, nil
	case p.current.isKeyword("ENDS"):
		p.advance()
		if err := p.expectKeyword("WITH"); err != nil {
			return "", err
		}
		return OpEndsWith, nil
	}

	return "", p.errorf("expected comparison operator")
}

// parseLiteral consumes a literal value: single-quoted string, integer,
// float, or boolean.
func (p *parser) parseLiteral() (Value, error) {
	switch p.current.typ {
	case tokenString:
		v := Value{Kind: ValString, Str: p.current.value}
		p.advance()
		return v, nil

	case tokenNumber:
		raw := p.current.value
		p.advance()
		if strings.Contains(raw, ".") {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Value{}, p.errorf("invalid number %q", raw)
			}
			return Value{Kind: ValFloat, Float: f}, nil
		}
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, p.errorf("invalid number %q", raw)
		}
		return Value{Kind: ValInt, Int: i}, nil

	case tokenIdent:
		if strings.EqualFold(p.current.value, "true") {
			p.advance()
			return Value{Kind: ValBool, Bool: true}, nil
		}
		if strings.EqualFold(p.current.value, "false") {
			p.advance()
			return Value{Kind: ValBool, Bool: false}, nil
		}
	}

	return Value{}, p.errorf("expected literal value")
}
