// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2016 Canonical Ltd
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

package osutil_test

import (
	"os"

	"gopkg.in/check.v1"

	"github.com/snapcore/sepatch/logger"
	"github.com/snapcore/sepatch/osutil"
)

type envSuite struct{}

var _ = check.Suite(&envSuite{})

func (s *envSuite) TearDownTest(c *check.C) {
	os.Unsetenv(logger.DebugEnv)
}

func (s *envSuite) TestGetenvBool(c *check.C) {
	c.Check(osutil.GetenvBool(logger.DebugEnv), check.Equals, false)

	for _, t := range []struct {
		value string
		set   bool
	}{
		{"1", true},
		{"t", true},
		{"TRUE", true},
		{"", false},
		{"0", false},
		{"f", false},
		{"FALSE", false},
		{"yes", false},
		{"potato", false},
	} {
		os.Setenv(logger.DebugEnv, t.value)
		c.Check(osutil.GetenvBool(logger.DebugEnv), check.Equals, t.set, check.Commentf("%q", t.value))
	}
}
