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

package dirs

import (
	"path/filepath"
)

// the various file paths
var (
	GlobalRootDir string

	SELinuxFSDir      string
	SELinuxPolicyFile string
	SELinuxLoadFile   string

	SepatchConfigFile string

	// SplitPolicyGlobs locate the CIL fragments of a split policy, as
	// installed under etc/selinux of the system, system_ext, product,
	// vendor and odm partitions.
	SplitPolicyGlobs []string
)

var callbacks = []func(string){}

func init() {
	SetRootDir("/")
}

// AddRootDirCallback registers a callback for whenever the global root
// directory (set by SetRootDir) is changed to enable updates to variables in
// other packages that depend on its location.
func AddRootDirCallback(c func(string)) {
	callbacks = append(callbacks, c)
}

// SetRootDir allows settings a new global root directory, this is useful
// for e.g. chroot operations
func SetRootDir(rootdir string) {
	if rootdir == "" {
		rootdir = "/"
	}
	GlobalRootDir = rootdir

	SELinuxFSDir = filepath.Join(rootdir, "/sys/fs/selinux")
	SELinuxPolicyFile = filepath.Join(SELinuxFSDir, "policy")
	SELinuxLoadFile = filepath.Join(SELinuxFSDir, "load")

	SepatchConfigFile = filepath.Join(rootdir, "/etc/sepatch/config.yaml")

	SplitPolicyGlobs = []string{
		filepath.Join(rootdir, "/system/etc/selinux/plat_sepolicy.cil"),
		filepath.Join(rootdir, "/system/etc/selinux/mapping/*.cil"),
		filepath.Join(rootdir, "/system_ext/etc/selinux/system_ext_sepolicy.cil"),
		filepath.Join(rootdir, "/product/etc/selinux/product_sepolicy.cil"),
		filepath.Join(rootdir, "/vendor/etc/selinux/plat_pub_versioned.cil"),
		filepath.Join(rootdir, "/vendor/etc/selinux/vendor_sepolicy.cil"),
		filepath.Join(rootdir, "/odm/etc/selinux/odm_sepolicy.cil"),
	}

	for _, c := range callbacks {
		c(rootdir)
	}
}
