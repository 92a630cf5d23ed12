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

package main

import (
	"bytes"

	"github.com/fatih/color"

	"github.com/snapcore/sepatch/testutil"
)

var (
	Run            = run
	ReadConfig     = readConfig
	ReadStatements = readStatements
	ErrSyntax      = errSyntax
	StatementHelp  = statementHelp
)

type Config = config

func MockStdio() (outBuf, errBuf *bytes.Buffer, restore func()) {
	outBuf, errBuf = &bytes.Buffer{}, &bytes.Buffer{}
	restore = testutil.Backup(&stdout, &stderr, &color.NoColor)
	stdout, stderr = outBuf, errBuf
	color.NoColor = true
	return outBuf, errBuf, restore
}

func (cfg *Config) ResolveClientDomains(types []string) []string {
	return cfg.clientDomains(types)
}
