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
	"fmt"
	"sort"
)

// Avtab entry kinds, as found in AvtabKey.Specified.
const (
	AvtabAllowed          = 0x0001
	AvtabAuditAllow       = 0x0002
	AvtabAuditDeny        = 0x0004
	AvtabAV               = AvtabAllowed | AvtabAuditAllow | AvtabAuditDeny
	AvtabTransition       = 0x0010
	AvtabMember           = 0x0020
	AvtabChange           = 0x0040
	AvtabType             = AvtabTransition | AvtabMember | AvtabChange
	AvtabXpermsAllowed    = 0x0100
	AvtabXpermsAuditAllow = 0x0200
	AvtabXpermsDontAudit  = 0x0400
	AvtabXperms           = AvtabXpermsAllowed | AvtabXpermsAuditAllow | AvtabXpermsDontAudit
)

// Extended permission entry kinds, as found in Xperms.Specified.
const (
	XpermsIoctlFunction = 0x01
	XpermsIoctlDriver   = 0x02
)

// AvtabKey identifies an access vector table entry.
type AvtabKey struct {
	SourceType  uint16
	TargetType  uint16
	TargetClass uint16
	Specified   uint16
}

// Xperms is a 256 bit map of ioctl functions (for one driver) or of ioctl
// drivers.
type Xperms struct {
	Specified uint8
	Driver    uint8
	Perms     [8]uint32
}

// Set sets bit i (0-255).
func (x *Xperms) Set(i uint8) {
	x.Perms[i>>5] |= 1 << (i & 31)
}

// Get returns whether bit i (0-255) is set.
func (x *Xperms) Get(i uint8) bool {
	return x.Perms[i>>5]&(1<<(i&31)) != 0
}

// AvtabDatum holds the value of an entry: an access vector, a default
// type, or extended permissions.
type AvtabDatum struct {
	Data   uint32
	Xperms *Xperms
}

// AvtabEntry is a key with its datum.
type AvtabEntry struct {
	Key   AvtabKey
	Datum *AvtabDatum
}

// extended permission entries may share a key, one per driver
type avtabSlot struct {
	key       AvtabKey
	xperms    uint8
	xdriver   uint8
	hasXperms bool
}

// Avtab is the access vector table.
type Avtab struct {
	entries map[avtabSlot]*AvtabDatum
}

func newAvtab() *Avtab {
	return &Avtab{entries: make(map[avtabSlot]*AvtabDatum)}
}

func slotFor(key AvtabKey, d *AvtabDatum) avtabSlot {
	s := avtabSlot{key: key}
	if d != nil && d.Xperms != nil {
		s.hasXperms = true
		s.xperms = d.Xperms.Specified
		s.xdriver = d.Xperms.Driver
	}
	return s
}

func validSpecified(specified uint16) bool {
	switch specified {
	case AvtabAllowed, AvtabAuditAllow, AvtabAuditDeny,
		AvtabTransition, AvtabMember, AvtabChange,
		AvtabXpermsAllowed, AvtabXpermsAuditAllow, AvtabXpermsDontAudit:
		return true
	}
	return false
}

// Len returns the number of entries.
func (a *Avtab) Len() int {
	return len(a.entries)
}

// Search returns the entry for a key that does not carry extended
// permissions.
func (a *Avtab) Search(key AvtabKey) (*AvtabDatum, bool) {
	d, ok := a.entries[avtabSlot{key: key}]
	return d, ok
}

// SearchXperms returns the extended permission entry of the given kind
// (and driver, for function entries).
func (a *Avtab) SearchXperms(key AvtabKey, specified, driver uint8) (*AvtabDatum, bool) {
	d, ok := a.entries[avtabSlot{key: key, hasXperms: true, xperms: specified, xdriver: driver}]
	return d, ok
}

// Insert adds an entry. It fails if an identical slot is already taken.
func (a *Avtab) Insert(key AvtabKey, datum *AvtabDatum) error {
	if !validSpecified(key.Specified) {
		return fmt.Errorf("invalid avtab entry kind 0x%x", key.Specified)
	}
	isX := key.Specified&AvtabXperms != 0
	if isX != (datum.Xperms != nil) {
		return fmt.Errorf("avtab entry kind 0x%x does not match its data", key.Specified)
	}
	slot := slotFor(key, datum)
	if _, ok := a.entries[slot]; ok {
		return fmt.Errorf("duplicate avtab entry %d:%d:%d kind 0x%x", key.SourceType, key.TargetType, key.TargetClass, key.Specified)
	}
	a.entries[slot] = datum
	return nil
}

// Remove deletes the entry that does not carry extended permissions.
func (a *Avtab) Remove(key AvtabKey) {
	delete(a.entries, avtabSlot{key: key})
}

// Entries returns all entries ordered by key, then extended permission
// kind and driver.
func (a *Avtab) Entries() []AvtabEntry {
	slots := make([]avtabSlot, 0, len(a.entries))
	for s := range a.entries {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		x, y := slots[i], slots[j]
		switch {
		case x.key.SourceType != y.key.SourceType:
			return x.key.SourceType < y.key.SourceType
		case x.key.TargetType != y.key.TargetType:
			return x.key.TargetType < y.key.TargetType
		case x.key.TargetClass != y.key.TargetClass:
			return x.key.TargetClass < y.key.TargetClass
		case x.key.Specified != y.key.Specified:
			return x.key.Specified < y.key.Specified
		case x.xperms != y.xperms:
			return x.xperms < y.xperms
		}
		return x.xdriver < y.xdriver
	})
	out := make([]AvtabEntry, len(slots))
	for i, s := range slots {
		out[i] = AvtabEntry{Key: s.key, Datum: a.entries[s]}
	}
	return out
}

func ioctlDriver(cmd uint16) uint8 { return uint8(cmd >> 8) }
func ioctlFunc(cmd uint16) uint8   { return uint8(cmd) }

// AddXpermRange ORs the ioctl range low-high (inclusive) into the extended
// permission entries for key, creating them when needed. A range spanning
// more than one driver is recorded at driver granularity, otherwise the
// function bits of the single driver are set.
func (db *PolicyDB) AddXpermRange(key AvtabKey, low, high uint16) error {
	if db.Version < VersionXpermsIoctl {
		return fmt.Errorf("policy version %d does not support extended permissions", db.Version)
	}
	if key.Specified&AvtabXperms == 0 {
		return fmt.Errorf("avtab entry kind 0x%x is not an extended permission kind", key.Specified)
	}
	if low > high {
		return fmt.Errorf("invalid ioctl range 0x%04x-0x%04x", low, high)
	}

	var specified, driver, first, last uint8
	if ioctlDriver(low) != ioctlDriver(high) {
		specified = XpermsIoctlDriver
		first, last = ioctlDriver(low), ioctlDriver(high)
	} else {
		specified = XpermsIoctlFunction
		driver = ioctlDriver(low)
		first, last = ioctlFunc(low), ioctlFunc(high)
	}

	d, ok := db.avtab.SearchXperms(key, specified, driver)
	if !ok {
		d = &AvtabDatum{Xperms: &Xperms{Specified: specified, Driver: driver}}
		if err := db.avtab.Insert(key, d); err != nil {
			return err
		}
	}
	for i := int(first); i <= int(last); i++ {
		d.Xperms.Set(uint8(i))
	}
	return nil
}
