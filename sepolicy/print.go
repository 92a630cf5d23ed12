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

	"github.com/snapcore/sepatch/policydb"
)

// Rules renders the policy as statements that rebuild its attributes,
// permissive domains, access vector table and transitions when applied
// to a policy declaring the same types and classes. Entries granting no
// named permission are left out. A driver-level ioctl entry covering a
// single driver prints as the full function range of that driver, which
// grants the same commands but is stored as a function-level entry when
// applied.
func (p *Policy) Rules() ([]string, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	db := p.db
	typeName := func(v uint16) string {
		t, ok := db.TypeByValue(uint32(v))
		if !ok {
			return fmt.Sprintf("<type %d>", v)
		}
		return t.Name
	}

	var out []string
	for _, t := range db.Types() {
		if t.Attribute {
			continue
		}
		for _, a := range db.Types() {
			if a.Attribute && db.HasTypeAttribute(t, a) {
				out = append(out, fmt.Sprintf("attradd %s %s", t.Name, a.Name))
			}
		}
	}
	for _, bit := range db.Permissive.Bits() {
		out = append(out, "permissive "+typeName(uint16(bit)))
	}

	for _, ent := range db.Avtab().Entries() {
		k := ent.Key
		c, ok := db.ClassByValue(uint32(k.TargetClass))
		if !ok {
			continue
		}
		src, tgt := typeName(k.SourceType), typeName(k.TargetType)
		switch {
		case k.Specified&policydb.AvtabAV != 0:
			var kind RuleKind
			switch k.Specified {
			case policydb.AvtabAuditAllow:
				kind = AuditAllow
			case policydb.AvtabAuditDeny:
				kind = AuditDeny
			}
			perms := permNames(c, ent.Datum.Data)
			if len(perms) == 0 {
				continue
			}
			out = append(out, fmt.Sprintf("%s %s %s %s %s", kind, src, tgt, c.Name, permSet(perms)))
		case k.Specified == policydb.AvtabTransition:
			out = append(out, fmt.Sprintf("typetrans %s %s %s %s", src, tgt, c.Name, typeName(uint16(ent.Datum.Data))))
		case k.Specified&policydb.AvtabXperms != 0:
			var kind XpermKind
			switch k.Specified {
			case policydb.AvtabXpermsAuditAllow:
				kind = XpermAuditAllow
			case policydb.AvtabXpermsDontAudit:
				kind = XpermDontAudit
			}
			for _, r := range xpermRanges(ent.Datum.Xperms) {
				out = append(out, fmt.Sprintf("%s %s %s %s ioctl %s", kind, src, tgt, c.Name, r))
			}
		}
	}

	for _, k := range db.FilenameTransKeys() {
		otype, _ := db.FilenameTrans(k)
		c, ok := db.ClassByValue(k.TargetClass)
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("typetrans %s %s %s %s %s",
			typeName(uint16(k.SourceType)), typeName(uint16(k.TargetType)), c.Name, typeName(uint16(otype)), k.Name))
	}
	return out, nil
}

func permNames(c *policydb.Class, data uint32) []string {
	var perms []string
	for i := uint32(0); i < 32; i++ {
		if data&(1<<i) != 0 {
			if name := c.PermName(i + 1); name != "" {
				perms = append(perms, name)
			}
		}
	}
	return perms
}

func permSet(perms []string) string {
	if len(perms) == 1 {
		return perms[0]
	}
	return "{ " + strings.Join(perms, " ") + " }"
}

// xpermRanges folds the bits of an extended permission entry back into
// ioctl ranges.
func xpermRanges(x *policydb.Xperms) []IoctlRange {
	var out []IoctlRange
	toCmd := func(i int) uint16 {
		if x.Specified == policydb.XpermsIoctlDriver {
			return uint16(i) << 8
		}
		return uint16(x.Driver)<<8 | uint16(i)
	}
	start := -1
	for i := 0; i <= 256; i++ {
		set := i < 256 && x.Get(uint8(i))
		switch {
		case set && start < 0:
			start = i
		case !set && start >= 0:
			r := IoctlRange{Low: toCmd(start), High: toCmd(i - 1)}
			if x.Specified == policydb.XpermsIoctlDriver {
				r.High |= 0xff
			}
			out = append(out, r)
			start = -1
		}
	}
	return out
}
