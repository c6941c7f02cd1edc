// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package outline turns the outline of a DJVU document, as printed by
// `djvused -e print-outline`, into the flat bookmark list pdftk accepts.
//
// The djvused output is an S-expression such as
//
//	(bookmarks
//	 ("Chapter 1" "#5"
//	  ("Section 1.1" "#6"))
//	 ("Chapter 2" "#10"))
//
// Parse builds a tree of Node values from it, Flatten walks that tree in
// pre-order, and Serialize plus Splice produce the edited metadata text.
package outline

import (
	"fmt"
	"io"
)

// Node is one element of a parsed outline: a List, a String or a Symbol.
type Node interface {
	node()
}

// List is a parenthesized, ordered sequence of nodes.
type List []Node

// String is a double-quoted atom. Titles and page targets are strings.
type String string

// Symbol is a bare atom, such as the leading `bookmarks` keyword.
// Flatten ignores symbols.
type Symbol string

func (List) node()   {}
func (String) node() {}
func (Symbol) node() {}

// MalformedOutlineError reports outline text that cannot be parsed, or,
// in strict mode, titles and targets that do not pair up.
type MalformedOutlineError struct {
	// Offset is the byte offset of the problem, or -1 when the problem
	// is structural rather than positional.
	Offset int
	Reason string
}

func (e *MalformedOutlineError) Error() string {
	if e.Offset < 0 {
		return "malformed outline: " + e.Reason
	}
	return fmt.Sprintf("malformed outline at offset %d: %s", e.Offset, e.Reason)
}

// Parse reads djvused outline text. Empty input yields an empty List.
// A single top-level list becomes the root; several top-level
// expressions are wrapped in a new root list.
func Parse(r io.Reader) (List, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading outline: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes is Parse for an in-memory outline.
func ParseBytes(data []byte) (List, error) {
	p := &parser{src: data}

	var top List
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		top = append(top, n)
	}

	if len(top) == 1 {
		if l, ok := top[0].(List); ok {
			return l, nil
		}
	}
	if top == nil {
		top = List{}
	}
	return top, nil
}

type parser struct {
	src []byte
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) fail(offset int, format string, args ...any) error {
	return &MalformedOutlineError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// skipSpace advances past whitespace and `;` line comments.
func (p *parser) skipSpace() {
	for !p.eof() {
		switch c := p.src[p.pos]; {
		case c == ' ', c == '\t', c == '\n', c == '\r', c == '\f', c == '\v':
			p.pos++
		case c == ';':
			for !p.eof() && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *parser) expr() (Node, error) {
	switch p.src[p.pos] {
	case '(':
		return p.list()
	case ')':
		return nil, p.fail(p.pos, "unexpected ')'")
	case '"':
		return p.str()
	default:
		return p.symbol(), nil
	}
}

func (p *parser) list() (Node, error) {
	start := p.pos
	p.pos++ // (

	l := List{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.fail(start, "unterminated list")
		}
		if p.src[p.pos] == ')' {
			p.pos++
			return l, nil
		}
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		l = append(l, n)
	}
}

func (p *parser) symbol() Node {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c == '(' || c == ')' || c == '"' || c == ';' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v' {
			break
		}
		p.pos++
	}
	return Symbol(p.src[start:p.pos])
}

// str parses a double-quoted string. djvused escapes quotes, backslashes,
// the usual C control characters and, without -u, non-ASCII bytes as
// three-digit octal.
func (p *parser) str() (Node, error) {
	start := p.pos
	p.pos++ // opening quote

	var buf []byte
	for {
		if p.eof() {
			return nil, p.fail(start, "unterminated string")
		}
		c := p.src[p.pos]
		p.pos++
		switch c {
		case '"':
			return String(buf), nil
		case '\\':
			if p.eof() {
				return nil, p.fail(start, "unterminated string")
			}
			b, err := p.escape()
			if err != nil {
				return nil, err
			}
			buf = append(buf, b)
		default:
			buf = append(buf, c)
		}
	}
}

func (p *parser) escape() (byte, error) {
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'a':
		return '\a', nil
	case 'b':
		return '\b', nil
	case 't':
		return '\t', nil
	case 'n':
		return '\n', nil
	case 'v':
		return '\v', nil
	case 'f':
		return '\f', nil
	case 'r':
		return '\r', nil
	}
	if c < '0' || c > '7' {
		return c, nil
	}

	v := int(c - '0')
	for i := 0; i < 2 && !p.eof(); i++ {
		d := p.src[p.pos]
		if d < '0' || d > '7' {
			break
		}
		v = v*8 + int(d-'0')
		p.pos++
	}
	if v > 0xff {
		return 0, p.fail(p.pos, "octal escape \\%o out of range", v)
	}
	return byte(v), nil
}
