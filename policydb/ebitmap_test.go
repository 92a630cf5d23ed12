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

package policydb_test

import (
	. "gopkg.in/check.v1"

	"github.com/snapcore/sepatch/policydb"
)

type ebitmapSuite struct{}

var _ = Suite(&ebitmapSuite{})

func (s *ebitmapSuite) TestSetGet(c *C) {
	var e policydb.Ebitmap
	c.Check(e.Bits(), HasLen, 0)
	c.Check(e.Get(3), Equals, false)

	for _, bit := range []uint32{200, 3, 64, 63, 0} {
		e.Set(bit, true)
	}
	c.Check(e.Bits(), DeepEquals, []uint32{0, 3, 63, 64, 200})
	c.Check(e.Bits(), HasLen, 5)
	c.Check(e.Get(64), Equals, true)
	c.Check(e.Get(65), Equals, false)

	// setting twice is harmless
	e.Set(3, true)
	c.Check(e.Bits(), HasLen, 5)
}

func (s *ebitmapSuite) TestClear(c *C) {
	var e policydb.Ebitmap
	e.Set(130, true)
	e.Set(1, true)
	e.Set(130, false)
	e.Set(500, false)
	c.Check(e.Bits(), DeepEquals, []uint32{1})

	c.Check(e.Get(130), Equals, false)

	e.Set(1, false)
	c.Check(e.Bits(), HasLen, 0)
}
