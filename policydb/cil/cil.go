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

// Package cil compiles a subset of the Common Intermediate Language for
// SELinux policies into a policydb.PolicyDB.
//
// Supported statements are common, class, classcommon, type,
// typeattribute, typeattributeset (with and, or, xor, not and all
// expressions), typealias, typealiasactual, allow, auditallow,
// typetransition, typepermissive, allowx, auditallowx and dontauditx.
// Rule targets may be "self". Statements that only matter to the full
// toolchain (roles, users, contexts, MLS, ordering) are accepted and
// ignored.
package cil

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/snapcore/sepatch/logger"
	"github.com/snapcore/sepatch/policydb"
)

// DefaultPolicyVersion is the version of compiled policies unless changed
// with SetPolicyVersion.
const DefaultPolicyVersion = 30

var ErrNotCompiled = errors.New("cil database is not compiled")

// ignored statements are valid CIL that does not end up in the modeled
// sections of the binary policy
var ignored = map[string]bool{
	"classorder":          true,
	"classpermission":     true,
	"classpermissionset":  true,
	"category":            true,
	"categoryorder":       true,
	"sensitivity":         true,
	"sensitivityorder":    true,
	"sensitivitycategory": true,
	"mls":                 true,
	"handleunknown":       true,
	"role":                true,
	"roletype":            true,
	"roleattribute":       true,
	"roleattributeset":    true,
	"user":                true,
	"userrole":            true,
	"userlevel":           true,
	"userrange":           true,
	"sid":                 true,
	"sidorder":            true,
	"sidcontext":          true,
	"genfscon":            true,
	"fsuse":               true,
	"portcon":             true,
	"netifcon":            true,
	"nodecon":             true,
	"filecon":             true,
	"neverallow":          true,
	"neverallowx":         true,
	"dontaudit":           true,
	"expandtypeattribute": true,
	"policycap":           true,
	"typemember":          true,
	"typechange":          true,
	"booleanif":           true,
	"boolean":             true,
	"mlsconstrain":        true,
	"constrain":           true,
	"validatetrans":       true,
	"mlsvalidatetrans":    true,
	"defaultuser":         true,
	"defaultrole":         true,
	"defaulttype":         true,
	"defaultrange":        true,
	"rangetransition":     true,
	"roletransition":      true,
	"roleallow":           true,
	"typebounds":          true,
	"ibpkeycon":           true,
	"ibendportcon":        true,
	"iomemcon":            true,
	"ioportcon":           true,
	"pcidevicecon":        true,
	"pirqcon":             true,
	"devicetreecon":       true,
	"context":             true,
	"level":               true,
	"levelrange":          true,
	"ipaddr":              true,
	"selinuxuser":         true,
	"selinuxuserdefault":  true,
	"userprefix":          true,
}

type source struct {
	name  string
	nodes []*node
}

// DB collects CIL sources and compiles them.
type DB struct {
	version uint32
	sources []source
	policy  *policydb.PolicyDB
}

// NewDB returns an empty CIL database.
func NewDB() *DB {
	return &DB{version: DefaultPolicyVersion}
}

// SetPolicyVersion sets the version of the policy built by Compile.
func (db *DB) SetPolicyVersion(version uint32) {
	db.version = version
}

// AddFile parses a CIL source and queues it for compilation.
func (db *DB) AddFile(name string, data []byte) error {
	nodes, err := parse(name, data)
	if err != nil {
		return fmt.Errorf("cannot parse CIL: %w", err)
	}
	db.sources = append(db.sources, source{name: name, nodes: nodes})
	db.policy = nil
	return nil
}

// Compile resolves all queued sources into a policy.
func (db *DB) Compile() error {
	pol, err := policydb.New(db.version)
	if err != nil {
		return fmt.Errorf("cannot compile CIL: %w", err)
	}
	c := &compiler{
		db:          pol,
		commons:     make(map[string][]string),
		classCommon: make(map[string]string),
		aliases:     make(map[string]string),
	}
	var all []*node
	for _, src := range db.sources {
		all = append(all, src.nodes...)
	}
	if err := c.declare(all); err != nil {
		return fmt.Errorf("cannot compile CIL: %w", err)
	}
	if err := c.rules(all); err != nil {
		return fmt.Errorf("cannot compile CIL: %w", err)
	}
	db.policy = pol
	return nil
}

// BuildPolicyDB returns the compiled policy.
func (db *DB) BuildPolicyDB() (*policydb.PolicyDB, error) {
	if db.policy == nil {
		return nil, ErrNotCompiled
	}
	return db.policy, nil
}

type classDecl struct {
	n     *node
	name  string
	perms []string
}

type compiler struct {
	db          *policydb.PolicyDB
	commons     map[string][]string
	classes     []classDecl
	classCommon map[string]string

	// aliases maps alias names to the name of their actual type
	aliases      map[string]string
	aliasDecls   []*node
	aliasActuals []*node

	// attrSets holds the typeattributeset expressions of each attribute,
	// members the evaluated result
	attrSets  map[uint32][]*node
	members   map[uint32]typeSet
	resolving map[uint32]bool
}

// typeSet holds type values. Attributes never appear in it.
type typeSet map[uint32]bool

func (s typeSet) sorted() []uint32 {
	out := make([]uint32, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func atoms(n *node) ([]string, error) {
	if !n.isList {
		return []string{n.atom}, nil
	}
	out := make([]string, 0, len(n.list))
	for _, c := range n.list {
		if c.isList {
			return nil, fmt.Errorf("%s: unsupported expression %s", c.pos(), c)
		}
		out = append(out, c.atom)
	}
	return out, nil
}

func checkArgs(n *node, want ...int) error {
	got := len(n.list) - 1
	for _, w := range want {
		if got == w {
			return nil
		}
	}
	return fmt.Errorf("%s: wrong number of arguments for %s", n.pos(), n.list[0].atom)
}

func keyword(n *node) (string, error) {
	if !n.isList || len(n.list) == 0 || n.list[0].isList {
		return "", fmt.Errorf("%s: invalid statement %s", n.pos(), n)
	}
	return n.list[0].atom, nil
}

// declare creates classes and types so rules can reference them in any
// order.
func (c *compiler) declare(nodes []*node) error {
	for _, n := range nodes {
		kw, err := keyword(n)
		if err != nil {
			return err
		}
		switch kw {
		case "common", "class":
			if err := checkArgs(n, 2); err != nil {
				return err
			}
			perms, err := atoms(n.list[2])
			if err != nil {
				return err
			}
			if !n.list[2].isList {
				return fmt.Errorf("%s: permissions must be a list", n.pos())
			}
			name := n.list[1].atom
			if kw == "common" {
				if _, ok := c.commons[name]; ok {
					return fmt.Errorf("%s: duplicate common %q", n.pos(), name)
				}
				c.commons[name] = perms
			} else {
				c.classes = append(c.classes, classDecl{n: n, name: name, perms: perms})
			}
		case "classcommon":
			if err := checkArgs(n, 2); err != nil {
				return err
			}
			c.classCommon[n.list[1].atom] = n.list[2].atom
		case "type", "typeattribute":
			if err := checkArgs(n, 1); err != nil {
				return err
			}
			if _, err := c.db.AddType(n.list[1].atom, kw == "typeattribute"); err != nil {
				return fmt.Errorf("%s: %v", n.pos(), err)
			}
		case "typealias":
			if err := checkArgs(n, 1); err != nil {
				return err
			}
			name := n.list[1].atom
			if _, ok := c.aliases[name]; ok {
				return fmt.Errorf("%s: duplicate alias %q", n.pos(), name)
			}
			c.aliases[name] = ""
			c.aliasDecls = append(c.aliasDecls, n)
		case "typealiasactual":
			if err := checkArgs(n, 2); err != nil {
				return err
			}
			c.aliasActuals = append(c.aliasActuals, n)
		}
	}
	if err := c.resolveAliases(); err != nil {
		return err
	}

	// common permissions come first, as the kernel numbers them
	for _, decl := range c.classes {
		var perms []string
		if common, ok := c.classCommon[decl.name]; ok {
			cperms, ok := c.commons[common]
			if !ok {
				return fmt.Errorf("%s: unknown common %q", decl.n.pos(), common)
			}
			perms = append(perms, cperms...)
		}
		perms = append(perms, decl.perms...)
		if _, err := c.db.AddClass(decl.name, perms...); err != nil {
			return fmt.Errorf("%s: %v", decl.n.pos(), err)
		}
	}
	for class := range c.classCommon {
		if _, ok := c.db.Class(class); !ok {
			return fmt.Errorf("classcommon references unknown class %q", class)
		}
	}
	return nil
}

func (c *compiler) resolveAliases() error {
	for _, n := range c.aliasActuals {
		alias, actual := n.list[1].atom, n.list[2].atom
		if _, ok := c.aliases[alias]; !ok {
			return fmt.Errorf("%s: unknown alias %q", n.pos(), alias)
		}
		t, ok := c.db.Type(actual)
		if !ok {
			return fmt.Errorf("%s: unknown type %q", n.pos(), actual)
		}
		if t.Attribute {
			return fmt.Errorf("%s: alias %q cannot refer to attribute %q", n.pos(), alias, actual)
		}
		c.aliases[alias] = actual
	}
	for _, n := range c.aliasDecls {
		alias := n.list[1].atom
		if _, ok := c.db.Type(alias); ok {
			return fmt.Errorf("%s: alias %q clashes with a type", n.pos(), alias)
		}
		if c.aliases[alias] == "" {
			return fmt.Errorf("%s: alias %q has no actual type", n.pos(), alias)
		}
	}
	return nil
}

func (c *compiler) rules(nodes []*node) error {
	if err := c.attributes(nodes); err != nil {
		return err
	}
	for _, n := range nodes {
		kw, _ := keyword(n)
		var err error
		switch kw {
		case "common", "class", "classcommon", "type", "typeattribute", "typealias", "typealiasactual", "typeattributeset":
			// handled by declare and attributes
		case "allow":
			err = c.avRule(n, policydb.AvtabAllowed)
		case "auditallow":
			err = c.avRule(n, policydb.AvtabAuditAllow)
		case "typetransition":
			err = c.typeTransition(n)
		case "typepermissive":
			if err = checkArgs(n, 1); err == nil {
				var t *policydb.Type
				if t, err = c.typ(n.list[1]); err == nil {
					c.db.Permissive.Set(t.Value, true)
				}
			}
		case "allowx":
			err = c.xpermRule(n, policydb.AvtabXpermsAllowed)
		case "auditallowx":
			err = c.xpermRule(n, policydb.AvtabXpermsAuditAllow)
		case "dontauditx":
			err = c.xpermRule(n, policydb.AvtabXpermsDontAudit)
		default:
			if !ignored[kw] {
				logger.Debugf("%s: skipping unsupported CIL statement %q", n.pos(), kw)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) typ(n *node) (*policydb.Type, error) {
	if n.isList {
		return nil, fmt.Errorf("%s: unsupported type expression %s", n.pos(), n)
	}
	name := n.atom
	if actual, ok := c.aliases[name]; ok {
		name = actual
	}
	t, ok := c.db.Type(name)
	if !ok {
		return nil, fmt.Errorf("%s: unknown type %q", n.pos(), n.atom)
	}
	return t, nil
}

// endpoints resolves the source and target of a rule. A "self" target
// pairs every type of the source with itself.
func (c *compiler) endpoints(srcNode, tgtNode *node) ([][2]*policydb.Type, error) {
	src, err := c.typ(srcNode)
	if err != nil {
		return nil, err
	}
	if tgtNode.isList || tgtNode.atom != "self" {
		tgt, err := c.typ(tgtNode)
		if err != nil {
			return nil, err
		}
		return [][2]*policydb.Type{{src, tgt}}, nil
	}
	if !src.Attribute {
		return [][2]*policydb.Type{{src, src}}, nil
	}
	var out [][2]*policydb.Type
	for _, t := range c.db.AttributeTypes(src) {
		out = append(out, [2]*policydb.Type{t, t})
	}
	return out, nil
}

func (c *compiler) class(n *node) (*policydb.Class, error) {
	if n.isList {
		return nil, fmt.Errorf("%s: unsupported class expression %s", n.pos(), n)
	}
	cl, ok := c.db.Class(n.atom)
	if !ok {
		return nil, fmt.Errorf("%s: unknown class %q", n.pos(), n.atom)
	}
	return cl, nil
}

// attributes evaluates every typeattributeset and records the resulting
// memberships. Attributes used inside an expression stand for their
// members.
func (c *compiler) attributes(nodes []*node) error {
	c.attrSets = make(map[uint32][]*node)
	c.members = make(map[uint32]typeSet)
	c.resolving = make(map[uint32]bool)
	var order []*policydb.Type
	for _, n := range nodes {
		if kw, _ := keyword(n); kw != "typeattributeset" {
			continue
		}
		if err := checkArgs(n, 2); err != nil {
			return err
		}
		attr, err := c.typ(n.list[1])
		if err != nil {
			return err
		}
		if !attr.Attribute {
			return fmt.Errorf("%s: %q is not an attribute", n.pos(), attr.Name)
		}
		if _, ok := c.attrSets[attr.Value]; !ok {
			order = append(order, attr)
		}
		c.attrSets[attr.Value] = append(c.attrSets[attr.Value], n.list[2])
	}
	for _, attr := range order {
		set, err := c.attributeMembers(attr)
		if err != nil {
			return err
		}
		for _, v := range set.sorted() {
			t, _ := c.db.TypeByValue(v)
			if err := c.db.SetTypeAttribute(t, attr); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compiler) attributeMembers(attr *policydb.Type) (typeSet, error) {
	if set, ok := c.members[attr.Value]; ok {
		return set, nil
	}
	c.resolving[attr.Value] = true
	defer delete(c.resolving, attr.Value)
	set := make(typeSet)
	for _, expr := range c.attrSets[attr.Value] {
		s, err := c.typeExpr(expr)
		if err != nil {
			return nil, err
		}
		for v := range s {
			set[v] = true
		}
	}
	c.members[attr.Value] = set
	return set, nil
}

// operand counts of the type expression operators
var typeOperators = map[string]int{
	"all": 0,
	"not": 1,
	"and": 2,
	"or":  2,
	"xor": 2,
}

// typeExpr evaluates a name, a list of names and expressions (their
// union) or an operator expression.
func (c *compiler) typeExpr(n *node) (typeSet, error) {
	if !n.isList {
		return c.nameSet(n)
	}
	if len(n.list) > 0 && !n.list[0].isList {
		if nargs, ok := typeOperators[n.list[0].atom]; ok {
			return c.typeOperator(n, nargs)
		}
	}
	set := make(typeSet)
	for _, child := range n.list {
		s, err := c.typeExpr(child)
		if err != nil {
			return nil, err
		}
		for v := range s {
			set[v] = true
		}
	}
	return set, nil
}

func (c *compiler) nameSet(n *node) (typeSet, error) {
	t, err := c.typ(n)
	if err != nil {
		return nil, err
	}
	if !t.Attribute {
		return typeSet{t.Value: true}, nil
	}
	if c.resolving[t.Value] {
		return nil, fmt.Errorf("%s: attribute %q contains itself", n.pos(), t.Name)
	}
	return c.attributeMembers(t)
}

func (c *compiler) allTypes() typeSet {
	set := make(typeSet)
	for _, t := range c.db.Types() {
		if !t.Attribute {
			set[t.Value] = true
		}
	}
	return set
}

func (c *compiler) typeOperator(n *node, nargs int) (typeSet, error) {
	op := n.list[0].atom
	if len(n.list)-1 != nargs {
		return nil, fmt.Errorf("%s: %s needs %d operands in %s", n.pos(), op, nargs, n)
	}
	operands := make([]typeSet, nargs)
	for i, arg := range n.list[1:] {
		s, err := c.typeExpr(arg)
		if err != nil {
			return nil, err
		}
		operands[i] = s
	}
	out := make(typeSet)
	switch op {
	case "all":
		out = c.allTypes()
	case "not":
		for v := range c.allTypes() {
			if !operands[0][v] {
				out[v] = true
			}
		}
	case "and":
		for v := range operands[0] {
			if operands[1][v] {
				out[v] = true
			}
		}
	case "or":
		for _, s := range operands {
			for v := range s {
				out[v] = true
			}
		}
	case "xor":
		for v := range operands[0] {
			if !operands[1][v] {
				out[v] = true
			}
		}
		for v := range operands[1] {
			if !operands[0][v] {
				out[v] = true
			}
		}
	}
	return out, nil
}

// avRule handles (allow SRC TGT (CLASS (PERM...))).
func (c *compiler) avRule(n *node, specified uint16) error {
	if err := checkArgs(n, 3); err != nil {
		return err
	}
	pairs, err := c.endpoints(n.list[1], n.list[2])
	if err != nil {
		return err
	}
	cp := n.list[3]
	if !cp.isList || len(cp.list) != 2 {
		return fmt.Errorf("%s: unsupported class permissions %s", n.pos(), cp)
	}
	cl, err := c.class(cp.list[0])
	if err != nil {
		return err
	}
	perms, err := atoms(cp.list[1])
	if err != nil {
		return err
	}
	var mask uint32
	for _, p := range perms {
		if p == "all" {
			mask |= cl.AllPerms()
			continue
		}
		v, ok := cl.Perm(p)
		if !ok {
			return fmt.Errorf("%s: unknown permission %q in class %q", n.pos(), p, cl.Name)
		}
		mask |= 1 << (v - 1)
	}
	for _, pair := range pairs {
		key := policydb.AvtabKey{
			SourceType:  uint16(pair[0].Value),
			TargetType:  uint16(pair[1].Value),
			TargetClass: uint16(cl.Value),
			Specified:   specified,
		}
		if d, ok := c.db.Avtab().Search(key); ok {
			d.Data |= mask
			continue
		}
		if err := c.db.Avtab().Insert(key, &policydb.AvtabDatum{Data: mask}); err != nil {
			return err
		}
	}
	return nil
}

// typeTransition handles the 4 argument form and the 5 argument form
// with an object name.
func (c *compiler) typeTransition(n *node) error {
	if err := checkArgs(n, 4, 5); err != nil {
		return err
	}
	args := n.list[1:]
	var objName string
	if len(args) == 5 {
		objName = args[3].atom
		if args[3].isList || objName == "" {
			return fmt.Errorf("%s: invalid object name %s", n.pos(), args[3])
		}
		args = append(args[:3:3], args[4])
	}
	src, err := c.typ(args[0])
	if err != nil {
		return err
	}
	tgt, err := c.typ(args[1])
	if err != nil {
		return err
	}
	cl, err := c.class(args[2])
	if err != nil {
		return err
	}
	def, err := c.typ(args[3])
	if err != nil {
		return err
	}
	if objName != "" {
		key := policydb.FilenameTransKey{SourceType: src.Value, TargetType: tgt.Value, TargetClass: cl.Value, Name: objName}
		if err := c.db.SetFilenameTrans(key, def.Value); err != nil {
			return fmt.Errorf("%s: %v", n.pos(), err)
		}
		return nil
	}
	key := policydb.AvtabKey{
		SourceType:  uint16(src.Value),
		TargetType:  uint16(tgt.Value),
		TargetClass: uint16(cl.Value),
		Specified:   policydb.AvtabTransition,
	}
	if d, ok := c.db.Avtab().Search(key); ok {
		if d.Data != def.Value {
			return fmt.Errorf("%s: conflicting type transition", n.pos())
		}
		return nil
	}
	return c.db.Avtab().Insert(key, &policydb.AvtabDatum{Data: def.Value})
}

func parseIoctl(n *node) (uint16, error) {
	v, err := strconv.ParseUint(n.atom, 0, 16)
	if err != nil || n.isList {
		return 0, fmt.Errorf("%s: invalid ioctl value %s", n.pos(), n)
	}
	return uint16(v), nil
}

// xpermRule handles (allowx SRC TGT (ioctl CLASS (VALUE|(range LOW HIGH)...))).
func (c *compiler) xpermRule(n *node, specified uint16) error {
	if err := checkArgs(n, 3); err != nil {
		return err
	}
	pairs, err := c.endpoints(n.list[1], n.list[2])
	if err != nil {
		return err
	}
	xp := n.list[3]
	if !xp.isList || len(xp.list) != 3 || xp.list[0].atom != "ioctl" {
		return fmt.Errorf("%s: unsupported extended permission %s", n.pos(), xp)
	}
	cl, err := c.class(xp.list[1])
	if err != nil {
		return err
	}
	values := xp.list[2]
	if !values.isList {
		values = &node{isList: true, list: []*node{values}, file: values.file, line: values.line}
	}
	var ranges [][2]uint16
	for _, v := range values.list {
		var low, high uint16
		switch {
		case !v.isList:
			if low, err = parseIoctl(v); err != nil {
				return err
			}
			high = low
		case len(v.list) == 3 && v.list[0].atom == "range":
			if low, err = parseIoctl(v.list[1]); err != nil {
				return err
			}
			if high, err = parseIoctl(v.list[2]); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s: unsupported ioctl expression %s", v.pos(), v)
		}
		ranges = append(ranges, [2]uint16{low, high})
	}
	for _, pair := range pairs {
		key := policydb.AvtabKey{
			SourceType:  uint16(pair[0].Value),
			TargetType:  uint16(pair[1].Value),
			TargetClass: uint16(cl.Value),
			Specified:   specified,
		}
		for _, r := range ranges {
			if err := c.db.AddXpermRange(key, r[0], r[1]); err != nil {
				return fmt.Errorf("%s: %v", n.pos(), err)
			}
		}
	}
	return nil
}
