package query

import (
	"strings"
	"unicode"
)

// tokenType represents the type of a lexical token.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenString
	tokenNumber
	tokenOp // = != <> < <= > >=
	tokenLParen
	tokenRParen
	tokenStar
	tokenInvalid
)

// token represents a lexical token with its position in the input.
type token struct {
	typ   tokenType
	value string
	pos   int
}

// isKeyword reports whether the token is the given keyword, matched
// case-insensitively. Keywords are lexed as plain identifiers.
func (t token) isKeyword(kw string) bool {
	return t.typ == tokenIdent && strings.EqualFold(t.value, kw)
}

// lexer tokenizes query input.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

// next returns the next token from the input.
func (l *lexer) next() token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return token{typ: tokenEOF, pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case '(':
		l.pos++
		return token{typ: tokenLParen, value: "(", pos: start}
	case ')':
		l.pos++
		return token{typ: tokenRParen, value: ")", pos: start}
	case '*':
		l.pos++
		return token{typ: tokenStar, value: "*", pos: start}
	case '\'':
		return l.readString()
	case '=':
		l.pos++
		return token{typ: tokenOp, value: "=", pos: start}
	case '!':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{typ: tokenOp, value: "!=", pos: start}
		}
		l.pos++
		return token{typ: tokenInvalid, value: "!", pos: start}
	case '<':
		if l.pos+1 < len(l.input) {
			switch l.input[l.pos+1] {
			case '=':
				l.pos += 2
				return token{typ: tokenOp, value: "<=", pos: start}
			case '>':
				// <> is an alias for !=
				l.pos += 2
				return token{typ: tokenOp, value: "!=", pos: start}
			}
		}
		l.pos++
		return token{typ: tokenOp, value: "<", pos: start}
	case '>':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return token{typ: tokenOp, value: ">=", pos: start}
		}
		l.pos++
		return token{typ: tokenOp, value: ">", pos: start}
	}

	if ch == '-' || unicode.IsDigit(rune(ch)) {
		return l.readNumber()
	}
	if isIdentStart(ch) {
		return l.readIdent()
	}

	l.pos++
	return token{typ: tokenInvalid, value: string(ch), pos: start}
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

// readString reads a single-quoted string literal. Doubled quotes
// escape a literal quote.
func (l *lexer) readString() token {
	start := l.pos
	l.pos++ // skip opening quote

	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\'' {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == '\'' {
				b.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			return token{typ: tokenString, value: b.String(), pos: start}
		}
		b.WriteByte(ch)
		l.pos++
	}

	// Unterminated string
	return token{typ: tokenInvalid, value: l.input[start:], pos: start}
}

func (l *lexer) readNumber() token {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < len(l.input) && unicode.IsDigit(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.input) && unicode.IsDigit(rune(l.input[l.pos])) {
			l.pos++
		}
	}
	return token{typ: tokenNumber, value: l.input[start:l.pos], pos: start}
}

func (l *lexer) readIdent() token {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	return token{typ: tokenIdent, value: l.input[start:l.pos], pos: start}
}

func isIdentStart(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || ch == '_'
}

func isIdentChar(ch byte) bool {
	r := rune(ch)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || ch == '_' || ch == '.'
}
