// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2014-2015 Canonical Ltd
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

package sepolicy

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError reports a statement that could not be parsed.
type SyntaxError struct {
	Statement string
	Reason    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q: %s", e.Statement, e.Reason)
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokAny
	tokOpen
	tokClose
)

type token struct {
	kind tokenKind
	text string
}

// lex splits a statement on spaces. Braces attached to a word become
// tokens of their own and a bare "*" becomes the wildcard.
func lex(text string) []token {
	var toks []token
	for _, field := range strings.Split(text, " ") {
		for strings.HasPrefix(field, "{") {
			toks = append(toks, token{kind: tokOpen, text: "{"})
			field = field[1:]
		}
		closing := 0
		for strings.HasSuffix(field, "}") {
			closing++
			field = field[:len(field)-1]
		}
		switch field {
		case "":
		case "*":
			toks = append(toks, token{kind: tokAny, text: field})
		default:
			toks = append(toks, token{kind: tokWord, text: field})
		}
		for i := 0; i < closing; i++ {
			toks = append(toks, token{kind: tokClose, text: "}"})
		}
	}
	return toks
}

type bracketState int

const (
	outsideBracket bracketState = iota
	insideBracket
)

// slotSpec describes one positional argument of a statement.
type slotSpec struct {
	name     string
	noSet    bool
	noAny    bool
	optional bool
}

// parseSlots runs the slot state machine: a token outside a bracket fills
// a slot and advances to the next one, tokens inside a bracket all go to
// the current slot.
func parseSlots(toks []token, specs []slotSpec) ([]Set, string) {
	slots := make([]Set, len(specs))
	cur := 0
	state := outsideBracket
	for _, tok := range toks {
		switch tok.kind {
		case tokOpen:
			if state == insideBracket {
				return nil, "nested '{'"
			}
			if cur >= len(specs) {
				return nil, "too many arguments"
			}
			if specs[cur].noSet {
				return nil, fmt.Sprintf("%s cannot be a set", specs[cur].name)
			}
			state = insideBracket
		case tokClose:
			if state != insideBracket {
				return nil, "unexpected '}'"
			}
			if len(slots[cur]) == 0 {
				return nil, fmt.Sprintf("empty set for %s", specs[cur].name)
			}
			state = outsideBracket
			cur++
		case tokAny:
			if state == insideBracket {
				return nil, "'*' cannot be used inside a set"
			}
			if cur >= len(specs) {
				return nil, "too many arguments"
			}
			if specs[cur].noAny {
				return nil, fmt.Sprintf("%s cannot be '*'", specs[cur].name)
			}
			slots[cur] = Set{Any}
			cur++
		case tokWord:
			if state == insideBracket {
				slots[cur] = append(slots[cur], Named(tok.text))
				continue
			}
			if cur >= len(specs) {
				return nil, "too many arguments"
			}
			slots[cur] = Set{Named(tok.text)}
			cur++
		}
	}
	if state == insideBracket {
		return nil, "missing '}'"
	}
	for i := cur; i < len(specs); i++ {
		if !specs[i].optional {
			return nil, fmt.Sprintf("missing %s", specs[i].name)
		}
	}
	return slots[:cur], ""
}

var (
	accessSlots = []slotSpec{{name: "source"}, {name: "target"}, {name: "class", noSet: true}, {name: "permission"}}
	attrSlots   = []slotSpec{{name: "type"}, {name: "attribute"}}
	transSlots  = []slotSpec{
		{name: "source", noSet: true, noAny: true},
		{name: "target", noSet: true, noAny: true},
		{name: "class", noSet: true, noAny: true},
		{name: "default type", noSet: true, noAny: true},
		{name: "filename", noSet: true, noAny: true, optional: true},
	}
	xpermSlots = []slotSpec{
		{name: "source"}, {name: "target"}, {name: "class"},
		{name: "extended permission kind", noSet: true, noAny: true},
		{name: "ioctl range", noSet: true, noAny: true},
	}
)

// Parse parses the text of a statement following its action keyword.
func Parse(action Action, text string) (Statement, error) {
	full := strings.TrimSpace(action.String() + " " + text)
	fail := func(format string, args ...interface{}) (Statement, error) {
		return nil, &SyntaxError{Statement: full, Reason: fmt.Sprintf(format, args...)}
	}
	toks := lex(text)

	switch action {
	case ActionAllow, ActionDeny, ActionAuditAllow, ActionAuditDeny:
		slots, reason := parseSlots(toks, accessSlots)
		if reason != "" {
			return fail("%s", reason)
		}
		kind := map[Action]RuleKind{
			ActionAllow:      Allow,
			ActionDeny:       Deny,
			ActionAuditAllow: AuditAllow,
			ActionAuditDeny:  AuditDeny,
		}[action]
		return &AccessRule{Kind: kind, Sources: slots[0], Targets: slots[1], Class: slots[2][0], Perms: slots[3]}, nil

	case ActionAttributeAdd:
		slots, reason := parseSlots(toks, attrSlots)
		if reason != "" {
			return fail("%s", reason)
		}
		return &AttributeAdd{Types: slots[0], Attributes: slots[1]}, nil

	case ActionCreate, ActionPermissive, ActionEnforce:
		// braces are plain delimiters here
		var domains Set
		for _, tok := range toks {
			switch tok.kind {
			case tokWord:
				domains = append(domains, Named(tok.text))
			case tokAny:
				if action == ActionCreate {
					return fail("cannot create '*'")
				}
				domains = append(domains, Any)
			}
		}
		if len(domains) == 0 {
			return fail("missing type")
		}
		op := map[Action]DomainOpKind{
			ActionCreate:     Create,
			ActionPermissive: SetPermissive,
			ActionEnforce:    SetEnforcing,
		}[action]
		return &DomainOp{Op: op, Domains: domains}, nil

	case ActionTypeTransition:
		slots, reason := parseSlots(toks, transSlots)
		if reason != "" {
			return fail("%s", reason)
		}
		tt := &TypeTransition{
			Source:  slots[0][0].Name(),
			Target:  slots[1][0].Name(),
			Class:   slots[2][0].Name(),
			Default: slots[3][0].Name(),
		}
		if len(slots) == 5 {
			tt.Filename = slots[4][0].Name()
		}
		return tt, nil

	case ActionAllowXperm, ActionAuditAllowXperm, ActionDontAuditXperm:
		slots, reason := parseSlots(toks, xpermSlots)
		if reason != "" {
			return fail("%s", reason)
		}
		if kind := slots[3][0].Name(); kind != "ioctl" {
			return fail("unsupported extended permission kind %q", kind)
		}
		r, err := ParseIoctlRange(slots[4][0].Name())
		if err != nil {
			return fail("%v", err)
		}
		kind := map[Action]XpermKind{
			ActionAllowXperm:      XpermAllow,
			ActionAuditAllowXperm: XpermAuditAllow,
			ActionDontAuditXperm:  XpermDontAudit,
		}[action]
		return &XpermRule{Kind: kind, Sources: slots[0], Targets: slots[1], Classes: slots[2], Range: r}, nil
	}
	return fail("unknown action")
}

// ParseStatement parses a full statement line, keyword included.
func ParseStatement(line string) (Statement, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, &SyntaxError{Statement: line, Reason: "empty statement"}
	}
	keyword, rest, _ := strings.Cut(line, " ")
	action, ok := ParseAction(keyword)
	if !ok {
		return nil, &SyntaxError{Statement: line, Reason: fmt.Sprintf("unknown action %q", keyword)}
	}
	return Parse(action, rest)
}

func parseIoctl(s string) (uint16, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(hex, 16, 16)
	if err != nil || hex == "" {
		return 0, fmt.Errorf("invalid ioctl number %q", s)
	}
	return uint16(v), nil
}

// ParseIoctlRange parses "0xLOW-0xHIGH" or a single "0xVALUE".
func ParseIoctlRange(s string) (IoctlRange, error) {
	lowStr, highStr, isRange := strings.Cut(s, "-")
	low, err := parseIoctl(lowStr)
	if err != nil {
		return IoctlRange{}, err
	}
	high := low
	if isRange {
		if high, err = parseIoctl(highStr); err != nil {
			return IoctlRange{}, err
		}
	}
	if low > high {
		return IoctlRange{}, fmt.Errorf("invalid ioctl range %q", s)
	}
	return IoctlRange{Low: low, High: high}, nil
}
