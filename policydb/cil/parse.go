// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2026 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package cil

import (
	"fmt"
	"strings"
)

// node is either an atom or a parenthesized list.
type node struct {
	atom   string
	quoted bool
	list   []*node
	isList bool

	file string
	line int
}

func (n *node) pos() string {
	return fmt.Sprintf("%s:%d", n.file, n.line)
}

func (n *node) String() string {
	if !n.isList {
		if n.quoted {
			return fmt.Sprintf("%q", n.atom)
		}
		return n.atom
	}
	parts := make([]string, len(n.list))
	for i, c := range n.list {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// parse reads the top level statements of a CIL source.
func parse(file string, data []byte) ([]*node, error) {
	p := &parser{file: file, src: string(data), line: 1}
	var out []*node
	for {
		p.skipSpace()
		if p.off >= len(p.src) {
			return out, nil
		}
		if p.src[p.off] != '(' {
			return nil, fmt.Errorf("%s:%d: statement must start with '('", file, p.line)
		}
		n, err := p.node()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
}

type parser struct {
	file string
	src  string
	off  int
	line int
}

func (p *parser) skipSpace() {
	for p.off < len(p.src) {
		switch c := p.src[p.off]; {
		case c == '\n':
			p.line++
			p.off++
		case c == ' ' || c == '\t' || c == '\r':
			p.off++
		case c == ';':
			for p.off < len(p.src) && p.src[p.off] != '\n' {
				p.off++
			}
		default:
			return
		}
	}
}

func (p *parser) node() (*node, error) {
	p.skipSpace()
	if p.off >= len(p.src) {
		return nil, fmt.Errorf("%s:%d: unexpected end of input", p.file, p.line)
	}
	n := &node{file: p.file, line: p.line}
	switch p.src[p.off] {
	case '(':
		p.off++
		n.isList = true
		for {
			p.skipSpace()
			if p.off >= len(p.src) {
				return nil, fmt.Errorf("%s:%d: unbalanced '('", p.file, n.line)
			}
			if p.src[p.off] == ')' {
				p.off++
				return n, nil
			}
			child, err := p.node()
			if err != nil {
				return nil, err
			}
			n.list = append(n.list, child)
		}
	case ')':
		return nil, fmt.Errorf("%s:%d: unexpected ')'", p.file, p.line)
	case '"':
		end := strings.IndexByte(p.src[p.off+1:], '"')
		if end < 0 {
			return nil, fmt.Errorf("%s:%d: unterminated string", p.file, p.line)
		}
		n.atom = p.src[p.off+1 : p.off+1+end]
		n.quoted = true
		p.off += end + 2
		return n, nil
	default:
		start := p.off
		for p.off < len(p.src) {
			c := p.src[p.off]
			if c == '(' || c == ')' || c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ';' || c == '"' {
				break
			}
			p.off++
		}
		n.atom = p.src[start:p.off]
		return n, nil
	}
}
