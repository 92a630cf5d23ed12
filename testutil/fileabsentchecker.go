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

package testutil

import (
	"fmt"
	"os"

	"gopkg.in/check.v1"
)

type fileAbsentChecker struct {
	*check.CheckerInfo
}

// FileAbsent verifies that the given file does not exist.
var FileAbsent check.Checker = &fileAbsentChecker{
	&check.CheckerInfo{Name: "FileAbsent", Params: []string{"filename"}},
}

func (c *fileAbsentChecker) Check(params []interface{}, names []string) (result bool, error string) {
	filename, ok := params[0].(string)
	if !ok {
		return false, "filename must be a string"
	}
	if _, err := os.Lstat(filename); err == nil {
		return false, fmt.Sprintf("file %q is present but should not exist", filename)
	}
	return true, ""
}
