package local

import (
	"errors"
	"fmt"
	"strconv"
)

// maxDepth bounds parenthesis and unary nesting.
const maxDepth = 32

var (
	errUnexpectedEnd = errors.New("unexpected end of expression")
	errTooDeep       = errors.New("expression nested too deeply")
)

// Evaluate parses and evaluates an arithmetic expression made of decimal
// numbers, + - * /, unary signs and parentheses with the usual precedence.
// There are no identifiers, calls or assignments.
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = ("+" | "-") unary | factor
//	factor = number | "(" expr ")"
func Evaluate(expr string) (float64, error) {
	p := &parser{src: expr}
	v, err := p.expr(0)
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return 0, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos], p.pos)
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) expr(depth int) (float64, error) {
	left, err := p.term(depth)
	if err != nil {
		return 0, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '+' && c != '-') {
			return left, nil
		}
		p.pos++
		right, err := p.term(depth)
		if err != nil {
			return 0, err
		}
		if c == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) term(depth int) (float64, error) {
	left, err := p.unary(depth)
	if err != nil {
		return 0, err
	}
	for {
		c, ok := p.peek()
		if !ok || (c != '*' && c != '/') {
			return left, nil
		}
		p.pos++
		right, err := p.unary(depth)
		if err != nil {
			return 0, err
		}
		if c == '*' {
			left *= right
		} else {
			left /= right
		}
	}
}

func (p *parser) unary(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, errTooDeep
	}
	c, ok := p.peek()
	if !ok {
		return 0, errUnexpectedEnd
	}
	switch c {
	case '-':
		p.pos++
		v, err := p.unary(depth + 1)
		return -v, err
	case '+':
		p.pos++
		return p.unary(depth + 1)
	}
	return p.factor(depth)
}

func (p *parser) factor(depth int) (float64, error) {
	c, ok := p.peek()
	if !ok {
		return 0, errUnexpectedEnd
	}
	if c == '(' {
		p.pos++
		v, err := p.expr(depth + 1)
		if err != nil {
			return 0, err
		}
		if c, ok := p.peek(); !ok || c != ')' {
			return 0, errors.New("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}
	return p.number()
}

func (p *parser) number() (float64, error) {
	start := p.pos
	digits, dots := 0, 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' {
			digits++
		} else if c == '.' {
			dots++
		} else {
			break
		}
		p.pos++
	}
	if digits == 0 || dots > 1 {
		if p.pos == start && p.pos < len(p.src) {
			return 0, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos], p.pos)
		}
		return 0, fmt.Errorf("invalid number %q", p.src[start:p.pos])
	}
	return strconv.ParseFloat(p.src[start:p.pos], 64)
}
