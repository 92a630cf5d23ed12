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

package release

import (
	"fmt"

	"github.com/opencontainers/selinux/go-selinux"
	"golang.org/x/sys/unix"

	"github.com/snapcore/sepatch/dirs"
)

// SELinuxLevelType encodes the kind of SELinux support found on this
// system.
type SELinuxLevelType int

const (
	// NoSELinux indicates that SELinux is not enabled.
	NoSELinux SELinuxLevelType = iota
	// SELinuxPermissive indicates that SELinux is enabled but only logs
	// denials.
	SELinuxPermissive
	// SELinuxEnforcing indicates that SELinux is enabled and enforcing.
	SELinuxEnforcing
)

func (l SELinuxLevelType) String() string {
	switch l {
	case NoSELinux:
		return "none"
	case SELinuxPermissive:
		return "permissive"
	case SELinuxEnforcing:
		return "enforcing"
	}
	return fmt.Sprintf("SELinuxLevelType(%d)", int(l))
}

var (
	selinuxLevel   SELinuxLevelType
	selinuxSummary string
)

func init() {
	dirs.AddRootDirCallback(func(string) {
		selinuxFSPath = dirs.SELinuxFSDir
	})
	selinuxLevel, selinuxSummary = detectSELinux()
}

// SELinuxLevel tells whether SELinux is available on the running kernel
// and in which mode.
func SELinuxLevel() SELinuxLevelType {
	return selinuxLevel
}

// SELinuxSummary describes the SELinux state of the running kernel.
func SELinuxSummary() string {
	return selinuxSummary
}

// MockSELinuxLevel makes the system believe it has a certain level of
// SELinux support.
func MockSELinuxLevel(level SELinuxLevelType) (restore func()) {
	oldLevel := selinuxLevel
	oldSummary := selinuxSummary
	selinuxLevel = level
	selinuxSummary = fmt.Sprintf("mocked selinux level: %v", level)
	return func() {
		selinuxLevel = oldLevel
		selinuxSummary = oldSummary
	}
}

// detection related code
var (
	selinuxFSPath      = dirs.SELinuxFSDir
	fsMagic            = filesystemMagic
	selinuxEnabled     = selinux.GetEnabled
	selinuxEnforceMode = selinux.EnforceMode
)

func filesystemMagic(path string) (uint32, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint32(st.Type), nil
}

func detectSELinux() (SELinuxLevelType, string) {
	magic, err := fsMagic(selinuxFSPath)
	if err != nil {
		return NoSELinux, fmt.Sprintf("selinuxfs not available: %v", err)
	}
	if magic != unix.SELINUX_MAGIC {
		return NoSELinux, fmt.Sprintf("%s is not a selinuxfs mount", selinuxFSPath)
	}
	if !selinuxEnabled() {
		return NoSELinux, "selinux not enabled"
	}
	switch selinuxEnforceMode() {
	case selinux.Enforcing:
		return SELinuxEnforcing, "selinux is enabled and enforcing"
	case selinux.Permissive:
		return SELinuxPermissive, "selinux is enabled in permissive mode"
	}
	return NoSELinux, "selinux is disabled"
}
