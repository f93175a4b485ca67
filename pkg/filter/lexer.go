package filter

import "strings"

type lexer struct {
	src []byte
	off int
}

func newLexer(src []byte) *lexer {
	return &lexer{src: src}
}

// Scan returns the byte offset, kind and text of the next token. Text is
// only set for identifiers, literals and illegal input.
func (l *lexer) Scan() (int, Token, string) {
	for l.off < len(l.src) && isSpace(l.src[l.off]) {
		l.off++
	}

	pos := l.off
	if l.off >= len(l.src) {
		return pos, eol, ""
	}

	ch := l.src[l.off]
	l.off++

	var (
		tok Token
		val string
	)
	switch {
	case isLetter(ch):
		tok, val = l.word(pos)
	case isDigit(ch):
		tok, val = l.number(pos)
	case ch == '"' || ch == '\'':
		tok, val = l.quoted(ch)
	case ch == '/':
		tok, val = l.regex()
	default:
		tok, val = l.operator(ch)
	}
	return pos, tok, val
}

func (l *lexer) word(start int) (Token, string) {
	for isLetter(l.peek()) {
		l.off++
	}
	w := string(l.src[start:l.off])

	switch strings.ToLower(w) {
	case "and":
		return and, ""
	case "or":
		return or, ""
	case "in":
		return in, ""
	case "true", "false":
		return boolean, w
	default:
		return identifier, w
	}
}

// number scans a duration: digits with at most one decimal point and an
// optional ms, s, m or h suffix.
func (l *lexer) number(start int) (Token, string) {
	seenDot := false
	for c := l.peek(); isDigit(c) || (c == '.' && !seenDot); c = l.peek() {
		seenDot = seenDot || c == '.'
		l.off++
	}
	l.off += unitLen(l.src[l.off:])

	if isLetter(l.peek()) {
		for isLetter(l.peek()) {
			l.off++
		}
		return illegal, "duration unit is malformed"
	}
	return duration, string(l.src[start:l.off])
}

func unitLen(rest []byte) int {
	if len(rest) == 0 {
		return 0
	}
	switch toLower(rest[0]) {
	case 'm':
		if len(rest) > 1 && toLower(rest[1]) == 's' {
			return 2
		}
		return 1
	case 's', 'h':
		return 1
	default:
		return 0
	}
}

func (l *lexer) quoted(quote byte) (Token, string) {
	start := l.off
	for l.off < len(l.src) && l.src[l.off] != quote {
		l.off++
	}
	if l.off >= len(l.src) {
		return illegal, "unclosed string"
	}

	val := string(l.src[start:l.off])
	l.off++
	if val == "" {
		return illegal, "empty string"
	}
	return stringLit, val
}

// regex scans up to the closing slash; \/ stands for a literal slash.
func (l *lexer) regex() (Token, string) {
	var b strings.Builder
	for l.off < len(l.src) {
		c := l.src[l.off]
		l.off++
		switch {
		case c == '/':
			return regexLit, b.String()
		case c == '\\' && l.peek() == '/':
			b.WriteByte('/')
			l.off++
		default:
			b.WriteByte(c)
		}
	}
	return illegal, "unclosed regex"
}

func (l *lexer) operator(ch byte) (Token, string) {
	switch ch {
	case '(':
		return lbracket, ""
	case ')':
		return rbracket, ""
	case ',':
		return comma, ""
	case '=':
		return equal, ""
	case '~':
		return like, ""
	case '!':
		if l.accept('=') {
			return notEqual, ""
		}
		if l.accept('~') {
			return notLike, ""
		}
	case '<':
		if l.accept('=') {
			return lte, ""
		}
		return less, ""
	case '>':
		if l.accept('=') {
			return gte, ""
		}
		return greater, ""
	}
	return illegal, "unexpected char"
}

func (l *lexer) peek() byte {
	if l.off < len(l.src) {
		return l.src[l.off]
	}
	return 0
}

func (l *lexer) accept(c byte) bool {
	if l.peek() != c {
		return false
	}
	l.off++
	return true
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func toLower(ch byte) byte {
	if ch >= 'A' && ch <= 'Z' {
		return ch + 'a' - 'A'
	}
	return ch
}
