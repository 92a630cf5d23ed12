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

// Package policydb implements an in-memory SELinux policy database and
// its binary representation.
//
// The binary layout follows the kernel policy format conventions (little
// endian 32 bit fields, the "SE Linux" magic string, 64 bit ebitmap map
// units and 16 bit access vector table keys) for the sections this
// package models: header, policy capabilities, permissive map, classes,
// types and attributes, access vector table, filename transitions and
// the type to attribute map.
//
// The result is not a complete kernel policy: the kernel cannot load it
// and policies compiled by the SELinux toolchain are rejected with
// ErrKernelLayout.
package policydb

import (
	"errors"
	"fmt"
	"sort"
)

const (
	// Magic starts every binary policy.
	Magic = 0xf97cff8c

	magicString = "SE Linux"

	// VersionBoundary is the first version carrying type properties.
	VersionBoundary = 24
	// VersionFilenameTrans is the first version with filename transitions.
	VersionFilenameTrans = 25
	// VersionXpermsIoctl is the first version with extended permissions.
	VersionXpermsIoctl = 30

	// VersionMin and VersionMax bound the versions that can be read.
	VersionMin = VersionBoundary
	VersionMax = 33

	// ConfigMLS marks a policy with multi level security enabled.
	ConfigMLS = 0x1
)

const (
	maxTypes      = 1<<16 - 1
	maxClasses    = 1<<16 - 1
	maxPerms      = 32
	maxNameLength = 4096
)

var (
	ErrBadMagic           = errors.New("policy magic number does not match")
	ErrUnsupportedVersion = errors.New("unsupported policy version")
	ErrExists             = errors.New("symbol already exists")

	// ErrKernelLayout is returned for policies carrying every section
	// of the kernel format (users, roles, MLS, conditionals, contexts),
	// which this package does not model.
	ErrKernelLayout = errors.New("policy uses the full kernel layout, which is not supported")
)

// Class is a security class together with its permissions.
type Class struct {
	Name  string
	Value uint32

	perms []string
	index map[string]uint32
}

// Perm returns the value (1 based) of the named permission.
func (c *Class) Perm(name string) (uint32, bool) {
	v, ok := c.index[name]
	return v, ok
}

// Perms returns the permission names ordered by value.
func (c *Class) Perms() []string {
	return append([]string(nil), c.perms...)
}

// PermName returns the name of the permission with the given value.
func (c *Class) PermName(value uint32) string {
	if value == 0 || int(value) > len(c.perms) {
		return ""
	}
	return c.perms[value-1]
}

// AllPerms returns the access vector with every permission set.
func (c *Class) AllPerms() uint32 {
	if len(c.perms) == maxPerms {
		return ^uint32(0)
	}
	return 1<<uint(len(c.perms)) - 1
}

// AddPerm adds a permission to the class, returning its value. Adding an
// existing permission returns the existing value.
func (c *Class) AddPerm(name string) (uint32, error) {
	if v, ok := c.index[name]; ok {
		return v, nil
	}
	if len(c.perms) >= maxPerms {
		return 0, fmt.Errorf("class %q cannot hold more than %d permissions", c.Name, maxPerms)
	}
	if c.index == nil {
		c.index = make(map[string]uint32)
	}
	c.perms = append(c.perms, name)
	v := uint32(len(c.perms))
	c.index[name] = v
	return v, nil
}

// Type is either a type proper or a type attribute. Both share the same
// value space.
type Type struct {
	Name      string
	Value     uint32
	Attribute bool
	Primary   bool
	Bounds    uint32
}

// PolicyDB is a loaded policy. It is not safe for concurrent use.
type PolicyDB struct {
	Version uint32
	Config  uint32

	// PolicyCaps holds the enabled policy capabilities.
	PolicyCaps Ebitmap
	// Permissive holds the permissive types, indexed by type value.
	Permissive Ebitmap

	classes     []*Class
	classByName map[string]*Class
	types       []*Type
	typeByName  map[string]*Type

	// typeAttrMap[t-1] has bit a-1 set when type t has attribute a;
	// attrTypeMap is the reverse relation.
	typeAttrMap []Ebitmap
	attrTypeMap []Ebitmap

	avtab         *Avtab
	filenameTrans map[FilenameTransKey]uint32
}

// New returns an empty policy of the given version.
func New(version uint32) (*PolicyDB, error) {
	if version < VersionMin || version > VersionMax {
		return nil, fmt.Errorf("%w %d (supported: %d-%d)", ErrUnsupportedVersion, version, VersionMin, VersionMax)
	}
	return &PolicyDB{
		Version:       version,
		classByName:   make(map[string]*Class),
		typeByName:    make(map[string]*Type),
		avtab:         newAvtab(),
		filenameTrans: make(map[FilenameTransKey]uint32),
	}, nil
}

// Class looks up a class by name.
func (db *PolicyDB) Class(name string) (*Class, bool) {
	c, ok := db.classByName[name]
	return c, ok
}

// ClassByValue looks up a class by value.
func (db *PolicyDB) ClassByValue(value uint32) (*Class, bool) {
	if value == 0 || int(value) > len(db.classes) {
		return nil, false
	}
	return db.classes[value-1], true
}

// Classes returns all classes ordered by value.
func (db *PolicyDB) Classes() []*Class {
	return append([]*Class(nil), db.classes...)
}

// AddClass declares a new class with the given permissions.
func (db *PolicyDB) AddClass(name string, perms ...string) (*Class, error) {
	if _, ok := db.classByName[name]; ok {
		return nil, fmt.Errorf("cannot add class %q: %w", name, ErrExists)
	}
	if len(db.classes) >= maxClasses {
		return nil, fmt.Errorf("cannot add class %q: too many classes", name)
	}
	c := &Class{Name: name, Value: uint32(len(db.classes) + 1)}
	for _, p := range perms {
		if _, err := c.AddPerm(p); err != nil {
			return nil, err
		}
	}
	db.classes = append(db.classes, c)
	db.classByName[name] = c
	return c, nil
}

// Type looks up a type or attribute by name.
func (db *PolicyDB) Type(name string) (*Type, bool) {
	t, ok := db.typeByName[name]
	return t, ok
}

// TypeByValue looks up a type or attribute by value.
func (db *PolicyDB) TypeByValue(value uint32) (*Type, bool) {
	if value == 0 || int(value) > len(db.types) {
		return nil, false
	}
	return db.types[value-1], true
}

// Types returns all types and attributes ordered by value.
func (db *PolicyDB) Types() []*Type {
	return append([]*Type(nil), db.types...)
}

// AddType declares a new type (or attribute) with the next free value.
func (db *PolicyDB) AddType(name string, attribute bool) (*Type, error) {
	if _, ok := db.typeByName[name]; ok {
		return nil, fmt.Errorf("cannot add type %q: %w", name, ErrExists)
	}
	if len(db.types) >= maxTypes {
		return nil, fmt.Errorf("cannot add type %q: too many types", name)
	}
	t := &Type{
		Name:      name,
		Value:     uint32(len(db.types) + 1),
		Attribute: attribute,
		Primary:   true,
	}
	db.types = append(db.types, t)
	db.typeByName[name] = t

	// every type is a member of its own attribute set
	var self Ebitmap
	self.Set(t.Value-1, true)
	db.typeAttrMap = append(db.typeAttrMap, self)
	var selfRev Ebitmap
	selfRev.Set(t.Value-1, true)
	db.attrTypeMap = append(db.attrTypeMap, selfRev)
	return t, nil
}

// SetTypeAttribute adds attr to the attributes of typ. Both must exist and
// attr must be an attribute.
func (db *PolicyDB) SetTypeAttribute(typ, attr *Type) error {
	if !attr.Attribute {
		return fmt.Errorf("%q is not an attribute", attr.Name)
	}
	if typ.Attribute {
		return fmt.Errorf("%q is an attribute, not a type", typ.Name)
	}
	db.typeAttrMap[typ.Value-1].Set(attr.Value-1, true)
	db.attrTypeMap[attr.Value-1].Set(typ.Value-1, true)
	return nil
}

// HasTypeAttribute reports whether typ carries attr.
func (db *PolicyDB) HasTypeAttribute(typ, attr *Type) bool {
	return db.typeAttrMap[typ.Value-1].Get(attr.Value - 1)
}

// AttributeTypes returns the types carrying attr, ordered by value.
func (db *PolicyDB) AttributeTypes(attr *Type) []*Type {
	var out []*Type
	for _, bit := range db.attrTypeMap[attr.Value-1].Bits() {
		t := db.types[bit]
		if t != attr {
			out = append(out, t)
		}
	}
	return out
}

// Avtab returns the access vector table.
func (db *PolicyDB) Avtab() *Avtab {
	return db.avtab
}

// FilenameTransKey identifies a filename transition.
type FilenameTransKey struct {
	SourceType  uint32
	TargetType  uint32
	TargetClass uint32
	Name        string
}

// SetFilenameTrans adds or replaces a filename transition.
func (db *PolicyDB) SetFilenameTrans(key FilenameTransKey, otype uint32) error {
	if db.Version < VersionFilenameTrans {
		return fmt.Errorf("policy version %d does not support filename transitions", db.Version)
	}
	db.filenameTrans[key] = otype
	return nil
}

// FilenameTrans looks up a filename transition.
func (db *PolicyDB) FilenameTrans(key FilenameTransKey) (uint32, bool) {
	otype, ok := db.filenameTrans[key]
	return otype, ok
}

// FilenameTransKeys returns all filename transition keys in a stable order.
func (db *PolicyDB) FilenameTransKeys() []FilenameTransKey {
	keys := make([]FilenameTransKey, 0, len(db.filenameTrans))
	for k := range db.filenameTrans {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch {
		case a.SourceType != b.SourceType:
			return a.SourceType < b.SourceType
		case a.TargetType != b.TargetType:
			return a.TargetType < b.TargetType
		case a.TargetClass != b.TargetClass:
			return a.TargetClass < b.TargetClass
		}
		return a.Name < b.Name
	})
	return keys
}
