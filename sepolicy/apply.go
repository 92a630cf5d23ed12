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
	"errors"
	"fmt"
	"strings"

	"github.com/snapcore/sepatch/logger"
	"github.com/snapcore/sepatch/policydb"
)

// ApplyError reports a single rule, one element of a statement's cross
// product, that could not be applied.
type ApplyError struct {
	Rule string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("cannot apply %q: %v", e.Rule, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// ApplyErrors collects the failed rules of one or more statements. The
// rules that did not fail were applied.
type ApplyErrors []*ApplyError

func (errs ApplyErrors) Error() string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = "- " + e.Error()
	}
	return fmt.Sprintf("cannot apply %d rules:\n%s", len(errs), strings.Join(msgs, "\n"))
}

// Is matches when any of the collected errors matches target.
func (errs ApplyErrors) Is(target error) bool {
	for _, e := range errs {
		if errors.Is(e, target) {
			return true
		}
	}
	return false
}

// Tuple is one element of the cross product of a statement's sets. For
// access rules all fields are set; xperm rules leave Perm empty;
// attribute additions carry the type in Source and the attribute in
// Target; domain operations only set Source.
type Tuple struct {
	Source string
	Target string
	Class  string
	Perm   string
}

// expandTypes resolves a set of type slots, the wildcard standing for
// every type (attributes excluded) or, with attributes set, every
// attribute.
func (p *Policy) expandTypes(s Set, attributes bool) []string {
	var out []string
	for _, id := range s {
		if id.IsAny() {
			out = append(out, p.names(attributes)...)
			continue
		}
		out = append(out, id.Name())
	}
	return out
}

func (p *Policy) expandClasses(s Set) []string {
	var out []string
	for _, id := range s {
		if id.IsAny() {
			out = append(out, p.Classes()...)
			continue
		}
		out = append(out, id.Name())
	}
	return out
}

// permsFor resolves the permission slot for one class. A wildcard class
// only keeps the named permissions it defines.
func (p *Policy) permsFor(class string, anyClass bool, perms Set) []string {
	var out []string
	for _, id := range perms {
		switch {
		case id.IsAny():
			out = append(out, p.Perms(class)...)
		case anyClass:
			c, _ := p.db.Class(class)
			if _, ok := c.Perm(id.Name()); ok {
				out = append(out, id.Name())
			}
		default:
			out = append(out, id.Name())
		}
	}
	return out
}

// Expand enumerates the cross product of the statement's sets against the
// current policy contents, calling fn for each tuple in source, target,
// class, permission order. Type transitions yield a single tuple.
func (p *Policy) Expand(stmt Statement, fn func(Tuple)) error {
	if err := p.check(); err != nil {
		return err
	}
	switch s := stmt.(type) {
	case *AccessRule:
		classes := p.expandClasses(Set{s.Class})
		if s.Class.IsAny() {
			for _, id := range s.Perms {
				if !id.IsAny() && !p.permDefined(id.Name()) {
					return fmt.Errorf("permission %q %w in any class", id.Name(), ErrNotFound)
				}
			}
		}
		targets := p.expandTypes(s.Targets, false)
		for _, src := range p.expandTypes(s.Sources, false) {
			for _, tgt := range targets {
				for _, cls := range classes {
					for _, perm := range p.permsFor(cls, s.Class.IsAny(), s.Perms) {
						fn(Tuple{Source: src, Target: tgt, Class: cls, Perm: perm})
					}
				}
			}
		}
	case *AttributeAdd:
		attrs := p.expandTypes(s.Attributes, true)
		for _, typ := range p.expandTypes(s.Types, false) {
			for _, attr := range attrs {
				fn(Tuple{Source: typ, Target: attr})
			}
		}
	case *DomainOp:
		for _, d := range p.expandTypes(s.Domains, false) {
			fn(Tuple{Source: d})
		}
	case *TypeTransition:
		fn(Tuple{Source: s.Source, Target: s.Target, Class: s.Class})
	case *XpermRule:
		targets := p.expandTypes(s.Targets, false)
		classes := p.expandClasses(s.Classes)
		for _, src := range p.expandTypes(s.Sources, false) {
			for _, tgt := range targets {
				for _, cls := range classes {
					fn(Tuple{Source: src, Target: tgt, Class: cls})
				}
			}
		}
	default:
		return fmt.Errorf("unsupported statement %T", stmt)
	}
	return nil
}

func (p *Policy) permDefined(perm string) bool {
	for _, c := range p.db.Classes() {
		if _, ok := c.Perm(perm); ok {
			return true
		}
	}
	return false
}

// Apply applies a statement, one tuple of its cross product at a time.
// Tuples that fail are collected into the returned ApplyErrors and do not
// stop the remaining ones.
func (p *Policy) Apply(stmt Statement) error {
	if err := p.check(); err != nil {
		return err
	}
	if _, ok := stmt.(*XpermRule); ok && !p.SupportsXperms() {
		return ApplyErrors{{Rule: stmt.String(), Err: ErrXpermUnsupported}}
	}
	logger.Debugf("applying %q", stmt)

	var errs ApplyErrors
	record := func(rule string, err error) {
		if err != nil {
			errs = append(errs, &ApplyError{Rule: rule, Err: err})
		}
	}
	var err error
	switch s := stmt.(type) {
	case *AccessRule:
		err = p.Expand(s, func(t Tuple) {
			if e := p.access(s.Kind, t.Source, t.Target, t.Class, t.Perm); e != nil {
				record(fmt.Sprintf("%s %s %s %s %s", s.Kind, t.Source, t.Target, t.Class, t.Perm), e)
			}
		})
	case *AttributeAdd:
		err = p.Expand(s, func(t Tuple) {
			if e := p.AddAttribute(t.Source, t.Target); e != nil {
				record(fmt.Sprintf("attradd %s %s", t.Source, t.Target), e)
			}
		})
	case *DomainOp:
		err = p.Expand(s, func(t Tuple) {
			var e error
			switch s.Op {
			case Create:
				e = p.CreateType(t.Source)
			case SetPermissive:
				e = p.SetPermissive(t.Source, true)
			case SetEnforcing:
				e = p.SetPermissive(t.Source, false)
			}
			if e != nil {
				record(fmt.Sprintf("%s %s", s.Op.action(), t.Source), e)
			}
		})
	case *TypeTransition:
		record(s.String(), p.TypeTransition(s.Source, s.Target, s.Class, s.Default, s.Filename))
	case *XpermRule:
		err = p.Expand(s, func(t Tuple) {
			if e := p.xperm(s.Kind, t.Source, t.Target, t.Class, s.Range); e != nil {
				record(fmt.Sprintf("%s %s %s %s ioctl %s", s.Kind, t.Source, t.Target, t.Class, s.Range), e)
			}
		})
	default:
		return fmt.Errorf("unsupported statement %T", stmt)
	}
	if err != nil {
		errs = append(errs, &ApplyError{Rule: stmt.String(), Err: err})
	}
	return errs.orNil()
}

func (p *Policy) access(kind RuleKind, src, tgt, class, perm string) error {
	if err := p.check(); err != nil {
		return err
	}
	c, err := p.class(class)
	if err != nil {
		return err
	}
	mask, err := p.perm(c, perm)
	if err != nil {
		return err
	}
	key, err := p.avtabKey(src, tgt, c, kind.specified())
	if err != nil {
		return err
	}
	avtab := p.db.Avtab()
	d, ok := avtab.Search(key)
	if kind == Deny {
		if !ok {
			return nil
		}
		d.Data &^= mask
		if d.Data == 0 {
			avtab.Remove(key)
		}
		return nil
	}
	if ok {
		d.Data |= mask
		return nil
	}
	return avtab.Insert(key, &policydb.AvtabDatum{Data: mask})
}

// Allow grants perm on tgt of class to src.
func (p *Policy) Allow(src, tgt, class, perm string) error {
	return p.access(Allow, src, tgt, class, perm)
}

// Deny clears perm from the allow rule of src, tgt and class. A missing
// rule is not an error.
func (p *Policy) Deny(src, tgt, class, perm string) error {
	return p.access(Deny, src, tgt, class, perm)
}

// AuditAllow adds perm to the auditallow rule of src, tgt and class.
func (p *Policy) AuditAllow(src, tgt, class, perm string) error {
	return p.access(AuditAllow, src, tgt, class, perm)
}

// AuditDeny adds perm to the auditdeny rule of src, tgt and class.
func (p *Policy) AuditDeny(src, tgt, class, perm string) error {
	return p.access(AuditDeny, src, tgt, class, perm)
}

// TypeTransition makes objects of class created by src in tgt get the
// type def. With a filename only objects of that name are affected; the
// plain and the filename transitions are kept apart.
func (p *Policy) TypeTransition(src, tgt, class, def, filename string) error {
	if err := p.check(); err != nil {
		return err
	}
	c, err := p.class(class)
	if err != nil {
		return err
	}
	key, err := p.avtabKey(src, tgt, c, policydb.AvtabTransition)
	if err != nil {
		return err
	}
	d, err := p.typ(def)
	if err != nil {
		return err
	}
	if filename != "" {
		return p.db.SetFilenameTrans(policydb.FilenameTransKey{
			SourceType:  uint32(key.SourceType),
			TargetType:  uint32(key.TargetType),
			TargetClass: uint32(key.TargetClass),
			Name:        filename,
		}, d.Value)
	}
	if datum, ok := p.db.Avtab().Search(key); ok {
		datum.Data = d.Value
		return nil
	}
	return p.db.Avtab().Insert(key, &policydb.AvtabDatum{Data: d.Value})
}

// AddAttribute adds attr to the attributes of typ.
func (p *Policy) AddAttribute(typ, attr string) error {
	if err := p.check(); err != nil {
		return err
	}
	t, err := p.typ(typ)
	if err != nil {
		return err
	}
	a, err := p.attribute(attr)
	if err != nil {
		return err
	}
	return p.db.SetTypeAttribute(t, a)
}

// CreateType declares a new type. Creating an existing type only logs a
// notice.
func (p *Policy) CreateType(name string) error {
	if err := p.check(); err != nil {
		return err
	}
	if p.Exists(name) {
		logger.Noticef("type %q already exists", name)
		return nil
	}
	_, err := p.db.AddType(name, false)
	return err
}

// SetPermissive marks the domain permissive or enforcing.
func (p *Policy) SetPermissive(domain string, permissive bool) error {
	if err := p.check(); err != nil {
		return err
	}
	t, err := p.typ(domain)
	if err != nil {
		return err
	}
	if t.Attribute {
		return fmt.Errorf("%q is an attribute", domain)
	}
	p.db.Permissive.Set(t.Value, permissive)
	return nil
}

func (p *Policy) xperm(kind XpermKind, src, tgt, class string, r IoctlRange) error {
	if err := p.check(); err != nil {
		return err
	}
	if !p.SupportsXperms() {
		return ErrXpermUnsupported
	}
	c, err := p.class(class)
	if err != nil {
		return err
	}
	key, err := p.avtabKey(src, tgt, c, kind.specified())
	if err != nil {
		return err
	}
	return p.db.AddXpermRange(key, r.Low, r.High)
}

// AllowXperm allows the ioctl range on tgt of class to src.
func (p *Policy) AllowXperm(src, tgt, class string, r IoctlRange) error {
	return p.xperm(XpermAllow, src, tgt, class, r)
}

// AuditAllowXperm audits the ioctl range when allowed.
func (p *Policy) AuditAllowXperm(src, tgt, class string, r IoctlRange) error {
	return p.xperm(XpermAuditAllow, src, tgt, class, r)
}

// DontAuditXperm silences denials of the ioctl range.
func (p *Policy) DontAuditXperm(src, tgt, class string, r IoctlRange) error {
	return p.xperm(XpermDontAudit, src, tgt, class, r)
}
