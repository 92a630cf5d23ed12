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
	"strings"
)

// Identifier names a type, attribute, class or permission, or is the
// wildcard Any standing for every member of the relevant collection.
// Wildcards are expanded against the policy when a statement is applied.
type Identifier struct {
	name string
	any  bool
}

// Any is the wildcard identifier, written as "*".
var Any = Identifier{any: true}

// Named returns the identifier for name.
func Named(name string) Identifier {
	return Identifier{name: name}
}

// IsAny reports whether id is the wildcard.
func (id Identifier) IsAny() bool {
	return id.any
}

// Name returns the identifier name, empty for the wildcard.
func (id Identifier) Name() string {
	return id.name
}

func (id Identifier) String() string {
	if id.any {
		return "*"
	}
	return id.name
}

// Set is an ordered group of identifiers. Duplicates are harmless.
type Set []Identifier

// Names builds a set of named identifiers.
func Names(names ...string) Set {
	s := make(Set, len(names))
	for i, n := range names {
		s[i] = Named(n)
	}
	return s
}

func (s Set) String() string {
	if len(s) == 1 {
		return s[0].String()
	}
	parts := make([]string, len(s))
	for i, id := range s {
		parts[i] = id.String()
	}
	return "{ " + strings.Join(parts, " ") + " }"
}

// Action is the keyword starting a statement.
type Action int

const (
	ActionAllow Action = iota
	ActionDeny
	ActionAuditAllow
	ActionAuditDeny
	ActionAttributeAdd
	ActionCreate
	ActionPermissive
	ActionEnforce
	ActionTypeTransition
	ActionAllowXperm
	ActionAuditAllowXperm
	ActionDontAuditXperm
)

var actionKeywords = []string{
	ActionAllow:           "allow",
	ActionDeny:            "deny",
	ActionAuditAllow:      "auditallow",
	ActionAuditDeny:       "auditdeny",
	ActionAttributeAdd:    "attradd",
	ActionCreate:          "create",
	ActionPermissive:      "permissive",
	ActionEnforce:         "enforce",
	ActionTypeTransition:  "typetrans",
	ActionAllowXperm:      "allowxperm",
	ActionAuditAllowXperm: "auditallowxperm",
	ActionDontAuditXperm:  "dontauditxperm",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionKeywords) {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionKeywords[a]
}

// ParseAction maps a statement keyword to its action.
func ParseAction(keyword string) (Action, bool) {
	for a, kw := range actionKeywords {
		if kw == keyword {
			return Action(a), true
		}
	}
	return 0, false
}

// RuleKind selects the access vector table an access rule works on.
type RuleKind int

const (
	// Allow adds permissions to the allow table.
	Allow RuleKind = iota
	// Deny removes permissions from the allow table.
	Deny
	// AuditAllow adds permissions to the auditallow table.
	AuditAllow
	// AuditDeny adds permissions to the auditdeny table.
	AuditDeny
)

func (k RuleKind) action() Action {
	switch k {
	case Deny:
		return ActionDeny
	case AuditAllow:
		return ActionAuditAllow
	case AuditDeny:
		return ActionAuditDeny
	}
	return ActionAllow
}

func (k RuleKind) String() string {
	return k.action().String()
}

// XpermKind selects the extended permission table of an xperm rule.
type XpermKind int

const (
	XpermAllow XpermKind = iota
	XpermAuditAllow
	XpermDontAudit
)

func (k XpermKind) action() Action {
	switch k {
	case XpermAuditAllow:
		return ActionAuditAllowXperm
	case XpermDontAudit:
		return ActionDontAuditXperm
	}
	return ActionAllowXperm
}

func (k XpermKind) String() string {
	return k.action().String()
}

// DomainOpKind is the operation of a DomainOp.
type DomainOpKind int

const (
	Create DomainOpKind = iota
	SetPermissive
	SetEnforcing
)

func (k DomainOpKind) action() Action {
	switch k {
	case SetPermissive:
		return ActionPermissive
	case SetEnforcing:
		return ActionEnforce
	}
	return ActionCreate
}

// A Statement is one parsed policy statement. It is one of *AccessRule,
// *AttributeAdd, *DomainOp, *TypeTransition or *XpermRule.
type Statement interface {
	Action() Action
	String() string
}

// AccessRule is "allow|deny|auditallow|auditdeny SRC TGT CLASS PERM".
type AccessRule struct {
	Kind    RuleKind
	Sources Set
	Targets Set
	Class   Identifier
	Perms   Set
}

func (r *AccessRule) Action() Action { return r.Kind.action() }

func (r *AccessRule) String() string {
	return fmt.Sprintf("%s %s %s %s %s", r.Kind, r.Sources, r.Targets, r.Class, r.Perms)
}

// AttributeAdd is "attradd TYPE ATTR".
type AttributeAdd struct {
	Types      Set
	Attributes Set
}

func (r *AttributeAdd) Action() Action { return ActionAttributeAdd }

func (r *AttributeAdd) String() string {
	return fmt.Sprintf("attradd %s %s", r.Types, r.Attributes)
}

// DomainOp is "create|permissive|enforce TYPE".
type DomainOp struct {
	Op      DomainOpKind
	Domains Set
}

func (r *DomainOp) Action() Action { return r.Op.action() }

func (r *DomainOp) String() string {
	return fmt.Sprintf("%s %s", r.Op.action(), r.Domains)
}

// TypeTransition is "typetrans SRC TGT CLASS DEFAULT [FILENAME]". With a
// filename it is a filename transition.
type TypeTransition struct {
	Source   string
	Target   string
	Class    string
	Default  string
	Filename string
}

func (r *TypeTransition) Action() Action { return ActionTypeTransition }

func (r *TypeTransition) String() string {
	s := fmt.Sprintf("typetrans %s %s %s %s", r.Source, r.Target, r.Class, r.Default)
	if r.Filename != "" {
		s += " " + r.Filename
	}
	return s
}

// IoctlRange is an inclusive range of ioctl command numbers.
type IoctlRange struct {
	Low  uint16
	High uint16
}

func (r IoctlRange) String() string {
	if r.Low == r.High {
		return fmt.Sprintf("0x%04X", r.Low)
	}
	return fmt.Sprintf("0x%04X-0x%04X", r.Low, r.High)
}

// XpermRule is "allowxperm|auditallowxperm|dontauditxperm SRC TGT CLASS
// ioctl RANGE".
type XpermRule struct {
	Kind    XpermKind
	Sources Set
	Targets Set
	Classes Set
	Range   IoctlRange
}

func (r *XpermRule) Action() Action { return r.Kind.action() }

func (r *XpermRule) String() string {
	return fmt.Sprintf("%s %s %s %s ioctl %s", r.Kind, r.Sources, r.Targets, r.Classes, r.Range)
}
