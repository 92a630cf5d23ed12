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

package policydb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// symNum is the number of symbol tables in the binary layout.
	symNum = 2
	// kernelSymNum is the symbol table count of policies built by the
	// SELinux toolchain.
	kernelSymNum = 8
)

const (
	typePropertyPrimary   = 0x1
	typePropertyAttribute = 0x2
)

type decoder struct {
	r   *bufio.Reader
	buf [8]byte
}

func (d *decoder) u8() (uint8, error) {
	return d.r.ReadByte()
}

func (d *decoder) u16() (uint16, error) {
	if _, err := io.ReadFull(d.r, d.buf[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(d.buf[:2]), nil
}

func (d *decoder) u32() (uint32, error) {
	if _, err := io.ReadFull(d.r, d.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(d.buf[:4]), nil
}

func (d *decoder) u64() (uint64, error) {
	if _, err := io.ReadFull(d.r, d.buf[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(d.buf[:8]), nil
}

func (d *decoder) u32s(n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		v, err := d.u32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *decoder) str(n uint32) (string, error) {
	if n == 0 || n > maxNameLength {
		return "", fmt.Errorf("invalid name length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) ebitmap() (Ebitmap, error) {
	var e Ebitmap
	hdr, err := d.u32s(3)
	if err != nil {
		return e, err
	}
	mapUnit, highBit, count := hdr[0], hdr[1], hdr[2]
	if mapUnit != mapUnitBits {
		return e, fmt.Errorf("ebitmap map unit size %d does not match %d", mapUnit, mapUnitBits)
	}
	if highBit%mapUnitBits != 0 {
		return e, fmt.Errorf("ebitmap high bit %d is not a multiple of %d", highBit, mapUnitBits)
	}
	if count > highBit/mapUnitBits {
		return e, fmt.Errorf("ebitmap node count %d exceeds high bit %d", count, highBit)
	}
	for i := uint32(0); i < count; i++ {
		start, err := d.u32()
		if err != nil {
			return e, err
		}
		bits, err := d.u64()
		if err != nil {
			return e, err
		}
		if start%mapUnitBits != 0 || start >= highBit {
			return e, fmt.Errorf("invalid ebitmap node start %d", start)
		}
		if len(e.nodes) > 0 && start <= e.nodes[len(e.nodes)-1].start {
			return e, fmt.Errorf("ebitmap nodes out of order at %d", start)
		}
		if bits == 0 {
			return e, fmt.Errorf("empty ebitmap node at %d", start)
		}
		e.nodes = append(e.nodes, ebitmapNode{start: start, bits: bits})
	}
	if count > 0 && e.highBit() != highBit {
		return e, fmt.Errorf("ebitmap high bit %d does not match last node", highBit)
	}
	return e, nil
}

// Read parses a binary policy.
func Read(r io.Reader) (*PolicyDB, error) {
	d := &decoder{r: bufio.NewReader(r)}
	db, err := d.policy()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("cannot read policy: truncated data: %w", err)
		}
		return nil, fmt.Errorf("cannot read policy: %w", err)
	}
	if _, err := d.r.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("cannot read policy: unexpected trailing data")
	}
	return db, nil
}

func (d *decoder) policy() (*PolicyDB, error) {
	magic, err := d.u32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("got 0x%08x: %w", magic, ErrBadMagic)
	}
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n != uint32(len(magicString)) {
		return nil, fmt.Errorf("policy string length %d: %w", n, ErrBadMagic)
	}
	s, err := d.str(n)
	if err != nil {
		return nil, err
	}
	if s != magicString {
		return nil, fmt.Errorf("policy string %q: %w", s, ErrBadMagic)
	}

	hdr, err := d.u32s(3)
	if err != nil {
		return nil, err
	}
	version, config, nsyms := hdr[0], hdr[1], hdr[2]
	db, err := New(version)
	if err != nil {
		return nil, err
	}
	db.Config = config
	if nsyms == kernelSymNum {
		return nil, fmt.Errorf("%d symbol tables: %w", nsyms, ErrKernelLayout)
	}
	if nsyms != symNum {
		return nil, fmt.Errorf("symbol table count %d does not match %d", nsyms, symNum)
	}

	if db.PolicyCaps, err = d.ebitmap(); err != nil {
		return nil, fmt.Errorf("policy capabilities: %w", err)
	}
	if db.Permissive, err = d.ebitmap(); err != nil {
		return nil, fmt.Errorf("permissive map: %w", err)
	}
	if err := d.classes(db); err != nil {
		return nil, fmt.Errorf("classes: %w", err)
	}
	if err := d.types(db); err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}
	for _, bit := range db.Permissive.Bits() {
		if _, ok := db.TypeByValue(bit); !ok {
			return nil, fmt.Errorf("permissive map references unknown type %d", bit)
		}
	}
	if err := d.avtab(db); err != nil {
		return nil, fmt.Errorf("access vector table: %w", err)
	}
	if db.Version >= VersionFilenameTrans {
		if err := d.filenameTrans(db); err != nil {
			return nil, fmt.Errorf("filename transitions: %w", err)
		}
	}
	if err := d.typeAttrMap(db); err != nil {
		return nil, fmt.Errorf("type attribute map: %w", err)
	}
	return db, nil
}

func (d *decoder) classes(db *PolicyDB) error {
	hdr, err := d.u32s(2)
	if err != nil {
		return err
	}
	nprim, nel := hdr[0], hdr[1]
	if nprim != nel || nel > maxClasses {
		return fmt.Errorf("invalid class count %d/%d", nprim, nel)
	}
	classes := make([]*Class, nel)
	for i := uint32(0); i < nel; i++ {
		f, err := d.u32s(4)
		if err != nil {
			return err
		}
		nameLen, value, permNprim, permNel := f[0], f[1], f[2], f[3]
		if value == 0 || value > nel || classes[value-1] != nil {
			return fmt.Errorf("invalid class value %d", value)
		}
		if permNprim != permNel || permNel > maxPerms {
			return fmt.Errorf("invalid permission count %d/%d", permNprim, permNel)
		}
		name, err := d.str(nameLen)
		if err != nil {
			return err
		}
		c := &Class{Name: name, Value: value, perms: make([]string, permNel), index: make(map[string]uint32)}
		for j := uint32(0); j < permNel; j++ {
			pf, err := d.u32s(2)
			if err != nil {
				return err
			}
			pname, err := d.str(pf[0])
			if err != nil {
				return err
			}
			pv := pf[1]
			if pv == 0 || pv > permNel || c.perms[pv-1] != "" {
				return fmt.Errorf("invalid permission value %d in class %q", pv, name)
			}
			if _, ok := c.index[pname]; ok {
				return fmt.Errorf("duplicate permission %q in class %q", pname, name)
			}
			c.perms[pv-1] = pname
			c.index[pname] = pv
		}
		if _, ok := db.classByName[name]; ok {
			return fmt.Errorf("duplicate class %q", name)
		}
		classes[value-1] = c
		db.classByName[name] = c
	}
	db.classes = classes
	return nil
}

func (d *decoder) types(db *PolicyDB) error {
	hdr, err := d.u32s(2)
	if err != nil {
		return err
	}
	nprim, nel := hdr[0], hdr[1]
	if nprim != nel || nel > maxTypes {
		return fmt.Errorf("invalid type count %d/%d", nprim, nel)
	}
	types := make([]*Type, nel)
	for i := uint32(0); i < nel; i++ {
		f, err := d.u32s(4)
		if err != nil {
			return err
		}
		nameLen, value, props, bounds := f[0], f[1], f[2], f[3]
		if value == 0 || value > nel || types[value-1] != nil {
			return fmt.Errorf("invalid type value %d", value)
		}
		if props&^(typePropertyPrimary|typePropertyAttribute) != 0 {
			return fmt.Errorf("invalid type properties 0x%x", props)
		}
		if bounds > nel {
			return fmt.Errorf("invalid type bounds %d", bounds)
		}
		name, err := d.str(nameLen)
		if err != nil {
			return err
		}
		if _, ok := db.typeByName[name]; ok {
			return fmt.Errorf("duplicate type %q", name)
		}
		t := &Type{
			Name:      name,
			Value:     value,
			Primary:   props&typePropertyPrimary != 0,
			Attribute: props&typePropertyAttribute != 0,
			Bounds:    bounds,
		}
		types[value-1] = t
		db.typeByName[name] = t
	}
	db.types = types
	return nil
}

func (d *decoder) avtab(db *PolicyDB) error {
	nel, err := d.u32()
	if err != nil {
		return err
	}
	ntypes, nclasses := uint16(len(db.types)), uint16(len(db.classes))
	for i := uint32(0); i < nel; i++ {
		var key AvtabKey
		for _, f := range []*uint16{&key.SourceType, &key.TargetType, &key.TargetClass, &key.Specified} {
			if *f, err = d.u16(); err != nil {
				return err
			}
		}
		if key.SourceType == 0 || key.SourceType > ntypes || key.TargetType == 0 || key.TargetType > ntypes {
			return fmt.Errorf("entry %d references unknown type", i)
		}
		if key.TargetClass == 0 || key.TargetClass > nclasses {
			return fmt.Errorf("entry %d references unknown class %d", i, key.TargetClass)
		}
		datum := &AvtabDatum{}
		if key.Specified&AvtabXperms != 0 {
			if db.Version < VersionXpermsIoctl {
				return fmt.Errorf("entry %d: extended permissions need policy version %d", i, VersionXpermsIoctl)
			}
			x := &Xperms{}
			if x.Specified, err = d.u8(); err != nil {
				return err
			}
			if x.Driver, err = d.u8(); err != nil {
				return err
			}
			if x.Specified != XpermsIoctlFunction && x.Specified != XpermsIoctlDriver {
				return fmt.Errorf("entry %d: invalid extended permission kind %d", i, x.Specified)
			}
			for j := range x.Perms {
				if x.Perms[j], err = d.u32(); err != nil {
					return err
				}
			}
			datum.Xperms = x
		} else {
			if datum.Data, err = d.u32(); err != nil {
				return err
			}
			if key.Specified&AvtabType != 0 && (datum.Data == 0 || datum.Data > uint32(ntypes)) {
				return fmt.Errorf("entry %d: invalid default type %d", i, datum.Data)
			}
		}
		if err := db.avtab.Insert(key, datum); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) filenameTrans(db *PolicyDB) error {
	nel, err := d.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < nel; i++ {
		n, err := d.u32()
		if err != nil {
			return err
		}
		name, err := d.str(n)
		if err != nil {
			return err
		}
		f, err := d.u32s(4)
		if err != nil {
			return err
		}
		key := FilenameTransKey{SourceType: f[0], TargetType: f[1], TargetClass: f[2], Name: name}
		for _, t := range []uint32{f[0], f[1], f[3]} {
			if _, ok := db.TypeByValue(t); !ok {
				return fmt.Errorf("transition %q references unknown type %d", name, t)
			}
		}
		if _, ok := db.ClassByValue(f[2]); !ok {
			return fmt.Errorf("transition %q references unknown class %d", name, f[2])
		}
		if _, ok := db.filenameTrans[key]; ok {
			return fmt.Errorf("duplicate transition %q", name)
		}
		db.filenameTrans[key] = f[3]
	}
	return nil
}

func (d *decoder) typeAttrMap(db *PolicyDB) error {
	n := len(db.types)
	db.typeAttrMap = make([]Ebitmap, n)
	db.attrTypeMap = make([]Ebitmap, n)
	for i := 0; i < n; i++ {
		e, err := d.ebitmap()
		if err != nil {
			return err
		}
		if !e.Get(uint32(i)) {
			return fmt.Errorf("type %q is missing from its own attribute set", db.types[i].Name)
		}
		for _, bit := range e.Bits() {
			if int(bit) >= n {
				return fmt.Errorf("type %q references unknown attribute %d", db.types[i].Name, bit+1)
			}
			if int(bit) != i && !db.types[bit].Attribute {
				return fmt.Errorf("type %q references non-attribute %q", db.types[i].Name, db.types[bit].Name)
			}
			db.attrTypeMap[bit].Set(uint32(i), true)
		}
		db.typeAttrMap[i] = e
	}
	return nil
}
