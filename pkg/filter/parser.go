package filter

import (
	"fmt"
	"slices"
	"strings"
)

// ParseError reports where an expression stopped making sense.
type ParseError struct {
	Position int
	Message  string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Position, e.Message)
}

type parser struct {
	lexer *lexer
	pos   int
	tok   Token
	val   string
}

// Parse turns a filter expression into its syntax tree. The descent
// methods panic with a ParseError and Parse recovers it; any other panic
// is re-raised.
func Parse(src []byte) (expr Expression, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(ParseError)
			if !ok {
				panic(r)
			}
			expr, err = nil, pe
		}
	}()

	p := parser{lexer: newLexer(src)}
	p.next()

	expr = p.expression()
	p.expect(eol)
	return expr, nil
}

// expression: term ( "or" term )*
func (p *parser) expression() Expression {
	return p.chain(or, p.term)
}

// term: factor ( "and" factor )*
func (p *parser) term() Expression {
	return p.chain(and, p.factor)
}

func (p *parser) chain(op Token, operand func() Expression) Expression {
	expr := operand()
	for p.matches(op) {
		p.next()
		expr = &binaryExpression{Left: expr, Op: op, Right: operand()}
	}
	return expr
}

// factor: comparison | "(" expression ")"
func (p *parser) factor() Expression {
	if !p.matches(lbracket) {
		return p.comparison()
	}
	p.next()
	expr := p.expression()
	p.expect(rbracket)
	p.next()
	return expr
}

// comparison: IDENTIFIER op value | IDENTIFIER "in" "(" STRING ( "," STRING )* ")"
func (p *parser) comparison() Expression {
	p.expect(identifier)
	left := newVarExpression(p.pos, p.val)
	p.next()

	op := p.tok
	switch op {
	case in:
		p.next()
		return &binaryExpression{Left: left, Op: in, Right: p.list()}
	case like, notLike:
		p.next()
		p.expect(regexLit)
		return &binaryExpression{Left: left, Op: op, Right: p.value()}
	case equal, notEqual, greater, gte, less, lte:
		p.next()
		return &binaryExpression{Left: left, Op: op, Right: p.value()}
	default:
		panic(p.errorf("expected operator instead of %s", p.tok))
	}
}

func (p *parser) list() Expression {
	p.expect(lbracket)
	p.next()

	items := &listExpression{}
	for {
		p.expect(stringLit)
		items.Values = append(items.Values, p.val)
		p.next()
		if !p.matches(comma) {
			break
		}
		p.next()
	}

	p.expect(rbracket)
	p.next()
	return items
}

func (p *parser) value() Expression {
	var expr Expression
	switch p.tok {
	case stringLit:
		expr = &stringExpression{Value: p.val}
	case duration:
		expr = newDurationExpression(p.pos, p.val)
	case boolean:
		expr = &booleanExpression{Value: strings.EqualFold(p.val, "true")}
	case regexLit:
		expr = newRegexExpression(p.pos, p.val)
	default:
		panic(p.errorf("expected value instead of %s", p.tok))
	}
	p.next()
	return expr
}

func (p *parser) next() {
	p.pos, p.tok, p.val = p.lexer.Scan()
	if p.tok == illegal {
		panic(p.errorf("%s", p.val))
	}
}

func (p *parser) matches(tokens ...Token) bool {
	return slices.Contains(tokens, p.tok)
}

func (p *parser) expect(tok Token) {
	if p.tok != tok {
		panic(p.errorf("expected %s instead of %s", tok, p.tok))
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return ParseError{p.pos, fmt.Sprintf(format, args...)}
}
