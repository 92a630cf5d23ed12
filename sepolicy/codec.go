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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/snapcore/sepatch/dirs"
	"github.com/snapcore/sepatch/logger"
	"github.com/snapcore/sepatch/osutil"
	"github.com/snapcore/sepatch/policydb"
	"github.com/snapcore/sepatch/policydb/cil"
	"github.com/snapcore/sepatch/strutil"
)

// LoadError is returned when a policy cannot be loaded. The caller
// cannot proceed without a policy.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load policy from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// DumpError is returned when a policy cannot be written out.
type DumpError struct {
	Path string
	Err  error
}

func (e *DumpError) Error() string {
	return fmt.Sprintf("cannot dump policy to %s: %v", e.Path, e.Err)
}

func (e *DumpError) Unwrap() error {
	return e.Err
}

// Load reads a binary policy. Missing, malformed and unsupported policy
// files all fail with a *LoadError. Policies compiled by the SELinux
// toolchain, including the one exported by the running kernel, wrap
// policydb.ErrKernelLayout.
func Load(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	db, err := policydb.Read(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	logger.Debugf("loaded policy version %d from %s", db.Version, path)
	return FromPolicyDB(db), nil
}

// SplitFiles expands the glob patterns (with "**" support) into the
// sorted list of CIL files they match, without duplicates.
func SplitFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return strutil.Deduplicate(files), nil
}

// LoadSplit compiles the split CIL policy made of the files matching the
// patterns, for systems that do not ship a precompiled policy.
func LoadSplit(patterns []string) (*Policy, error) {
	where := strings.Join(patterns, ", ")
	files, err := SplitFiles(patterns)
	if err != nil {
		return nil, &LoadError{Path: where, Err: err}
	}
	if len(files) == 0 {
		return nil, &LoadError{Path: where, Err: fmt.Errorf("no CIL files found")}
	}

	db := cil.NewDB()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, &LoadError{Path: where, Err: err}
		}
		if err := db.AddFile(f, data); err != nil {
			return nil, &LoadError{Path: where, Err: err}
		}
		logger.Debugf("added %s to split policy", f)
	}
	if err := db.Compile(); err != nil {
		return nil, &LoadError{Path: where, Err: err}
	}
	pdb, err := db.BuildPolicyDB()
	if err != nil {
		return nil, &LoadError{Path: where, Err: err}
	}
	return FromPolicyDB(pdb), nil
}

// Bytes serializes the policy.
func (p *Policy) Bytes() ([]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return p.db.Bytes()
}

// ErrLiveUnsupported is returned when dumping to the kernel policy load
// interface. The binary format written by Dump is not a complete kernel
// policy, so the kernel would reject it.
var ErrLiveUnsupported = errors.New("the running kernel cannot load this policy format")

// IsLivePath reports whether path is the kernel policy load interface.
func IsLivePath(path string) bool {
	return filepath.Clean(path) == dirs.SELinuxLoadFile
}

// Dump writes the policy in binary form. Files are replaced as a whole.
// The kernel load interface is refused with ErrLiveUnsupported and left
// untouched.
func (p *Policy) Dump(path string) error {
	if err := p.check(); err != nil {
		return &DumpError{Path: path, Err: err}
	}
	if IsLivePath(path) {
		return &DumpError{Path: path, Err: ErrLiveUnsupported}
	}

	data, err := p.db.Bytes()
	if err != nil {
		return &DumpError{Path: path, Err: err}
	}
	if err := osutil.AtomicWriteFile(path, data, 0644); err != nil {
		return &DumpError{Path: path, Err: err}
	}
	logger.Debugf("dumped policy version %d to %s", p.db.Version, path)
	return nil
}
