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
	"encoding/binary"
	"fmt"
	"io"
)

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *encoder) u32s(vs ...uint32) {
	for _, v := range vs {
		e.u32(v)
	}
}

func (e *encoder) ebitmap(m *Ebitmap) {
	e.u32s(mapUnitBits, m.highBit(), uint32(len(m.nodes)))
	for _, n := range m.nodes {
		e.u32(n.start)
		e.u64(n.bits)
	}
}

// Bytes serializes the policy. The output only depends on the policy
// contents.
func (db *PolicyDB) Bytes() ([]byte, error) {
	if db.Version < VersionMin || db.Version > VersionMax {
		return nil, fmt.Errorf("cannot write policy: %w %d", ErrUnsupportedVersion, db.Version)
	}
	e := &encoder{}
	e.u32(Magic)
	e.u32(uint32(len(magicString)))
	e.buf = append(e.buf, magicString...)
	e.u32s(db.Version, db.Config, symNum)
	e.ebitmap(&db.PolicyCaps)
	e.ebitmap(&db.Permissive)

	e.u32s(uint32(len(db.classes)), uint32(len(db.classes)))
	for _, c := range db.classes {
		e.u32s(uint32(len(c.Name)), c.Value, uint32(len(c.perms)), uint32(len(c.perms)))
		e.buf = append(e.buf, c.Name...)
		for i, p := range c.perms {
			e.u32s(uint32(len(p)), uint32(i+1))
			e.buf = append(e.buf, p...)
		}
	}

	e.u32s(uint32(len(db.types)), uint32(len(db.types)))
	for _, t := range db.types {
		var props uint32
		if t.Primary {
			props |= typePropertyPrimary
		}
		if t.Attribute {
			props |= typePropertyAttribute
		}
		e.u32s(uint32(len(t.Name)), t.Value, props, t.Bounds)
		e.buf = append(e.buf, t.Name...)
	}

	entries := db.avtab.Entries()
	e.u32(uint32(len(entries)))
	for _, ent := range entries {
		k := ent.Key
		if k.Specified&AvtabXperms != 0 && db.Version < VersionXpermsIoctl {
			return nil, fmt.Errorf("cannot write policy: extended permissions need policy version %d", VersionXpermsIoctl)
		}
		e.u16(k.SourceType)
		e.u16(k.TargetType)
		e.u16(k.TargetClass)
		e.u16(k.Specified)
		if x := ent.Datum.Xperms; x != nil {
			e.u8(x.Specified)
			e.u8(x.Driver)
			e.u32s(x.Perms[:]...)
		} else {
			e.u32(ent.Datum.Data)
		}
	}

	if db.Version >= VersionFilenameTrans {
		keys := db.FilenameTransKeys()
		e.u32(uint32(len(keys)))
		for _, k := range keys {
			e.u32(uint32(len(k.Name)))
			e.buf = append(e.buf, k.Name...)
			e.u32s(k.SourceType, k.TargetType, k.TargetClass, db.filenameTrans[k])
		}
	} else if len(db.filenameTrans) > 0 {
		return nil, fmt.Errorf("cannot write policy: filename transitions need policy version %d", VersionFilenameTrans)
	}

	for i := range db.typeAttrMap {
		e.ebitmap(&db.typeAttrMap[i])
	}
	return e.buf, nil
}

// Write serializes the policy to w with a single write call, as required
// by the kernel policy load interface.
func (db *PolicyDB) Write(w io.Writer) error {
	data, err := db.Bytes()
	if err != nil {
		return err
	}
	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("cannot write policy: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("cannot write policy: short write (%d of %d bytes)", n, len(data))
	}
	return nil
}
