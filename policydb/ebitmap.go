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
	"math/bits"
	"sort"
)

// mapUnitBits is the size of one ebitmap node on disk.
const mapUnitBits = 64

type ebitmapNode struct {
	start uint32
	bits  uint64
}

// Ebitmap is an extensible bitmap, stored as a sorted list of 64 bit
// nodes. The zero value is an empty bitmap.
type Ebitmap struct {
	nodes []ebitmapNode
}

func (e *Ebitmap) find(start uint32) (int, bool) {
	i := sort.Search(len(e.nodes), func(i int) bool {
		return e.nodes[i].start >= start
	})
	return i, i < len(e.nodes) && e.nodes[i].start == start
}

// Get returns whether bit is set.
func (e *Ebitmap) Get(bit uint32) bool {
	start := bit - bit%mapUnitBits
	i, ok := e.find(start)
	if !ok {
		return false
	}
	return e.nodes[i].bits&(1<<(bit-start)) != 0
}

// Set sets or clears bit. Nodes that become empty are dropped.
func (e *Ebitmap) Set(bit uint32, value bool) {
	start := bit - bit%mapUnitBits
	mask := uint64(1) << (bit - start)
	i, ok := e.find(start)
	if !value {
		if !ok {
			return
		}
		e.nodes[i].bits &^= mask
		if e.nodes[i].bits == 0 {
			e.nodes = append(e.nodes[:i], e.nodes[i+1:]...)
		}
		return
	}
	if ok {
		e.nodes[i].bits |= mask
		return
	}
	e.nodes = append(e.nodes, ebitmapNode{})
	copy(e.nodes[i+1:], e.nodes[i:])
	e.nodes[i] = ebitmapNode{start: start, bits: mask}
}

// Bits returns the set bits in ascending order.
func (e *Ebitmap) Bits() []uint32 {
	var out []uint32
	for _, n := range e.nodes {
		b := n.bits
		for b != 0 {
			off := uint32(bits.TrailingZeros64(b))
			out = append(out, n.start+off)
			b &^= 1 << off
		}
	}
	return out
}

// highBit is the first bit past the last node, as written on disk.
func (e *Ebitmap) highBit() uint32 {
	if len(e.nodes) == 0 {
		return 0
	}
	return e.nodes[len(e.nodes)-1].start + mapUnitBits
}
