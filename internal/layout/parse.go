package layout

import (
	"errors"
	"fmt"
	"math"
)

// ErrParse is wrapped by every *ParseError.
var ErrParse = errors.New("invalid window layout")

// maxDepth bounds split nesting. tmux windows never get close to it.
const maxDepth = 128

// ErrorKind classifies a layout parse failure.
type ErrorKind uint8

const (
	EmptyInput ErrorKind = iota + 1
	ExpectedDigit
	ExpectedHex
	ExpectedChar
	ExpectedElement
	Overflow
	TrailingInput
	TooDeep
)

func (k ErrorKind) String() string {
	switch k {
	case EmptyInput:
		return "empty input"
	case ExpectedDigit:
		return "expected digit"
	case ExpectedHex:
		return "expected hex digit"
	case ExpectedChar:
		return "expected character"
	case ExpectedElement:
		return "expected pane or split"
	case Overflow:
		return "number out of 16-bit range"
	case TrailingInput:
		return "trailing input"
	case TooDeep:
		return "splits nested too deeply"
	default:
		return fmt.Sprintf("error(%d)", k)
	}
}

// ParseError reports where and why a descriptor was rejected.
type ParseError struct {
	Kind   ErrorKind
	Offset int
	// Want is the expected byte for ExpectedChar.
	Want  byte
	Input string
}

func (e *ParseError) Error() string {
	what := e.Kind.String()
	if e.Kind == ExpectedChar {
		what = fmt.Sprintf("expected %q", e.Want)
	}
	return fmt.Sprintf("window layout: %s at offset %d near %q in %q", what, e.Offset, e.near(), e.Input)
}

func (e *ParseError) Unwrap() error { return ErrParse }

func (e *ParseError) near() string {
	if e.Offset >= len(e.Input) {
		return ""
	}
	end := e.Offset + 12
	if end > len(e.Input) {
		end = len(e.Input)
	}
	return e.Input[e.Offset:end]
}

// Parse decodes a full layout descriptor. The whole input must be consumed.
func Parse(descriptor string) (Layout, error) {
	p := &parser{input: descriptor}
	if descriptor == "" {
		return Layout{}, p.fail(EmptyInput)
	}

	id, err := p.hex()
	if err != nil {
		return Layout{}, err
	}
	if err := p.expect(','); err != nil {
		return Layout{}, err
	}
	root, err := p.container(0)
	if err != nil {
		return Layout{}, err
	}
	if !p.done() {
		return Layout{}, p.fail(TrailingInput)
	}
	return Layout{ID: id, Root: root}, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) done() bool { return p.pos >= len(p.input) }

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) fail(kind ErrorKind) *ParseError {
	return &ParseError{Kind: kind, Offset: p.pos, Input: p.input}
}

func (p *parser) expect(c byte) error {
	if p.peek() != c || p.done() {
		e := p.fail(ExpectedChar)
		e.Want = c
		return e
	}
	p.pos++
	return nil
}

func (p *parser) number() (uint16, error) {
	start := p.pos
	var v uint32
	for !p.done() && isDigit(p.peek()) {
		v = v*10 + uint32(p.peek()-'0')
		if v > math.MaxUint16 {
			p.pos = start
			return 0, p.fail(Overflow)
		}
		p.pos++
	}
	if p.pos == start {
		return 0, p.fail(ExpectedDigit)
	}
	return uint16(v), nil
}

func (p *parser) hex() (uint16, error) {
	start := p.pos
	var v uint32
	for !p.done() {
		d, ok := hexValue(p.peek())
		if !ok {
			break
		}
		v = v<<4 | uint32(d)
		if v > math.MaxUint16 {
			p.pos = start
			return 0, p.fail(Overflow)
		}
		p.pos++
	}
	if p.pos == start {
		return 0, p.fail(ExpectedHex)
	}
	return uint16(v), nil
}

func (p *parser) container(depth int) (Container, error) {
	if depth > maxDepth {
		return Container{}, p.fail(TooDeep)
	}

	var c Container
	var err error
	if c.Width, err = p.number(); err != nil {
		return c, err
	}
	if err = p.expect('x'); err != nil {
		return c, err
	}
	if c.Height, err = p.number(); err != nil {
		return c, err
	}
	if err = p.expect(','); err != nil {
		return c, err
	}
	if c.X, err = p.number(); err != nil {
		return c, err
	}
	if err = p.expect(','); err != nil {
		return c, err
	}
	if c.Y, err = p.number(); err != nil {
		return c, err
	}
	c.Element, err = p.element(depth)
	return c, err
}

func (p *parser) element(depth int) (Element, error) {
	switch p.peek() {
	case ',':
		p.pos++
		id, err := p.number()
		if err != nil {
			return Element{}, err
		}
		return Element{Kind: PaneKind, PaneID: id}, nil
	case '{':
		return p.split(HorizontalKind, '}', depth)
	case '[':
		return p.split(VerticalKind, ']', depth)
	default:
		return Element{}, p.fail(ExpectedElement)
	}
}

func (p *parser) split(kind Kind, closing byte, depth int) (Element, error) {
	p.pos++ // opening bracket
	var children []Container
	for {
		child, err := p.container(depth + 1)
		if err != nil {
			return Element{}, err
		}
		children = append(children, child)
		if p.peek() == ',' && !p.done() {
			p.pos++
			continue
		}
		if err := p.expect(closing); err != nil {
			return Element{}, err
		}
		return Element{Kind: kind, Children: children}, nil
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
