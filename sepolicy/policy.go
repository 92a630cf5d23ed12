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

// Package sepolicy edits SELinux policies: it parses policy statements,
// applies them to a loaded policy, carries the builtin root rule sets and
// loads and dumps binary and split CIL policies.
package sepolicy

import (
	"errors"
	"fmt"

	"github.com/snapcore/sepatch/policydb"
)

var (
	// ErrNotFound is returned when a statement names a type, attribute,
	// class or permission missing from the policy.
	ErrNotFound = errors.New("does not exist")
	// ErrXpermUnsupported is returned for extended permission rules on
	// policies older than version 30.
	ErrXpermUnsupported = errors.New("extended permissions are not supported by this policy version")
	// ErrDestroyed is returned when using a policy after Destroy.
	ErrDestroyed = errors.New("policy has been destroyed")
)

// Policy is an editable policy. It is owned by a single goroutine; the
// zero value is not usable, policies come from Load, LoadSplit or
// FromPolicyDB.
type Policy struct {
	db *policydb.PolicyDB
}

// FromPolicyDB wraps an in-memory policy database.
func FromPolicyDB(db *policydb.PolicyDB) *Policy {
	return &Policy{db: db}
}

// Destroy releases the policy. Any later use, including a second
// Destroy, fails with ErrDestroyed.
func (p *Policy) Destroy() error {
	if p.db == nil {
		return ErrDestroyed
	}
	p.db = nil
	return nil
}

func (p *Policy) check() error {
	if p.db == nil {
		return ErrDestroyed
	}
	return nil
}

// Version returns the binary policy version, 0 once destroyed.
func (p *Policy) Version() uint32 {
	if p.db == nil {
		return 0
	}
	return p.db.Version
}

// SupportsXperms reports whether the policy can hold extended permission
// rules.
func (p *Policy) SupportsXperms() bool {
	return p.Version() >= policydb.VersionXpermsIoctl
}

// Exists reports whether name is a known type or attribute.
func (p *Policy) Exists(name string) bool {
	if p.db == nil {
		return false
	}
	_, ok := p.db.Type(name)
	return ok
}

func (p *Policy) typ(name string) (*policydb.Type, error) {
	t, ok := p.db.Type(name)
	if !ok {
		return nil, fmt.Errorf("type %q %w", name, ErrNotFound)
	}
	return t, nil
}

func (p *Policy) attribute(name string) (*policydb.Type, error) {
	t, err := p.typ(name)
	if err != nil {
		return nil, err
	}
	if !t.Attribute {
		return nil, fmt.Errorf("%q is not an attribute", name)
	}
	return t, nil
}

func (p *Policy) class(name string) (*policydb.Class, error) {
	c, ok := p.db.Class(name)
	if !ok {
		return nil, fmt.Errorf("class %q %w", name, ErrNotFound)
	}
	return c, nil
}

func (p *Policy) perm(c *policydb.Class, name string) (uint32, error) {
	v, ok := c.Perm(name)
	if !ok {
		return 0, fmt.Errorf("permission %q in class %q %w", name, c.Name, ErrNotFound)
	}
	return 1 << (v - 1), nil
}

func (p *Policy) names(attributes bool) []string {
	if p.db == nil {
		return nil
	}
	var out []string
	for _, t := range p.db.Types() {
		if t.Attribute == attributes {
			out = append(out, t.Name)
		}
	}
	return out
}

// Types returns the names of all types (not attributes) ordered by value.
func (p *Policy) Types() []string {
	return p.names(false)
}

// Attributes returns the names of all attributes ordered by value.
func (p *Policy) Attributes() []string {
	return p.names(true)
}

// Classes returns the names of all classes ordered by value.
func (p *Policy) Classes() []string {
	if p.db == nil {
		return nil
	}
	classes := p.db.Classes()
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = c.Name
	}
	return out
}

// Perms returns the permissions of a class.
func (p *Policy) Perms(class string) []string {
	if p.db == nil {
		return nil
	}
	c, ok := p.db.Class(class)
	if !ok {
		return nil
	}
	return c.Perms()
}

func (k RuleKind) specified() uint16 {
	switch k {
	case AuditAllow:
		return policydb.AvtabAuditAllow
	case AuditDeny:
		return policydb.AvtabAuditDeny
	}
	return policydb.AvtabAllowed
}

func (k XpermKind) specified() uint16 {
	switch k {
	case XpermAuditAllow:
		return policydb.AvtabXpermsAuditAllow
	case XpermDontAudit:
		return policydb.AvtabXpermsDontAudit
	}
	return policydb.AvtabXpermsAllowed
}

func (p *Policy) avtabKey(src, tgt string, class *policydb.Class, specified uint16) (policydb.AvtabKey, error) {
	s, err := p.typ(src)
	if err != nil {
		return policydb.AvtabKey{}, err
	}
	t, err := p.typ(tgt)
	if err != nil {
		return policydb.AvtabKey{}, err
	}
	return policydb.AvtabKey{
		SourceType:  uint16(s.Value),
		TargetType:  uint16(t.Value),
		TargetClass: uint16(class.Value),
		Specified:   specified,
	}, nil
}

// HasRule reports whether the table selected by kind has an entry for
// exactly src, tgt and class carrying perm. For Deny it reports whether
// perm is absent from the allow table.
func (p *Policy) HasRule(kind RuleKind, src, tgt, class, perm string) bool {
	if p.db == nil {
		return false
	}
	c, err := p.class(class)
	if err != nil {
		return false
	}
	mask, err := p.perm(c, perm)
	if err != nil {
		return false
	}
	key, err := p.avtabKey(src, tgt, c, kind.specified())
	if err != nil {
		return false
	}
	d, ok := p.db.Avtab().Search(key)
	present := ok && d.Data&mask != 0
	if kind == Deny {
		return !present
	}
	return present
}

// Allowed reports whether the policy grants perm to src on tgt, taking
// the attributes of both types into account as the kernel does.
func (p *Policy) Allowed(src, tgt, class, perm string) bool {
	if p.db == nil {
		return false
	}
	c, err := p.class(class)
	if err != nil {
		return false
	}
	mask, err := p.perm(c, perm)
	if err != nil {
		return false
	}
	s, err := p.typ(src)
	if err != nil {
		return false
	}
	t, err := p.typ(tgt)
	if err != nil {
		return false
	}
	for _, sa := range p.withAttributes(s) {
		for _, ta := range p.withAttributes(t) {
			key := policydb.AvtabKey{
				SourceType:  uint16(sa.Value),
				TargetType:  uint16(ta.Value),
				TargetClass: uint16(c.Value),
				Specified:   policydb.AvtabAllowed,
			}
			if d, ok := p.db.Avtab().Search(key); ok && d.Data&mask != 0 {
				return true
			}
		}
	}
	return false
}

func (p *Policy) withAttributes(t *policydb.Type) []*policydb.Type {
	out := []*policydb.Type{t}
	for _, a := range p.db.Types() {
		if a.Attribute && a != t && p.db.HasTypeAttribute(t, a) {
			out = append(out, a)
		}
	}
	return out
}

// HasAttribute reports whether typ carries attr.
func (p *Policy) HasAttribute(typ, attr string) bool {
	if p.db == nil {
		return false
	}
	t, err := p.typ(typ)
	if err != nil {
		return false
	}
	a, err := p.attribute(attr)
	if err != nil {
		return false
	}
	return p.db.HasTypeAttribute(t, a)
}

// IsPermissive reports whether the domain is permissive.
func (p *Policy) IsPermissive(domain string) bool {
	if p.db == nil {
		return false
	}
	t, err := p.typ(domain)
	if err != nil {
		return false
	}
	return p.db.Permissive.Get(t.Value)
}

// TransitionDefault returns the default type of the plain type transition
// (empty filename) or filename transition matching the arguments.
func (p *Policy) TransitionDefault(src, tgt, class, filename string) (string, bool) {
	if p.db == nil {
		return "", false
	}
	c, err := p.class(class)
	if err != nil {
		return "", false
	}
	key, err := p.avtabKey(src, tgt, c, policydb.AvtabTransition)
	if err != nil {
		return "", false
	}
	var otype uint32
	var ok bool
	if filename == "" {
		var d *policydb.AvtabDatum
		if d, ok = p.db.Avtab().Search(key); ok {
			otype = d.Data
		}
	} else {
		otype, ok = p.db.FilenameTrans(policydb.FilenameTransKey{
			SourceType:  uint32(key.SourceType),
			TargetType:  uint32(key.TargetType),
			TargetClass: uint32(key.TargetClass),
			Name:        filename,
		})
	}
	if !ok {
		return "", false
	}
	t, ok := p.db.TypeByValue(otype)
	if !ok {
		return "", false
	}
	return t.Name, true
}

// HasXperm reports whether the ioctl command cmd is set in the extended
// permission table selected by kind, at function or driver granularity.
func (p *Policy) HasXperm(kind XpermKind, src, tgt, class string, cmd uint16) bool {
	if p.db == nil {
		return false
	}
	c, err := p.class(class)
	if err != nil {
		return false
	}
	key, err := p.avtabKey(src, tgt, c, kind.specified())
	if err != nil {
		return false
	}
	driver, function := uint8(cmd>>8), uint8(cmd)
	if d, ok := p.db.Avtab().SearchXperms(key, policydb.XpermsIoctlDriver, 0); ok && d.Xperms.Get(driver) {
		return true
	}
	if d, ok := p.db.Avtab().SearchXperms(key, policydb.XpermsIoctlFunction, driver); ok && d.Xperms.Get(function) {
		return true
	}
	return false
}
