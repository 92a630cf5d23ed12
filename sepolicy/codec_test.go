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

package sepolicy_test

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/snapcore/sepatch/dirs"
	"github.com/snapcore/sepatch/policydb"
	"github.com/snapcore/sepatch/sepolicy"
	"github.com/snapcore/sepatch/testutil"
)

type codecSuite struct {
	baseSuite
}

var _ = Suite(&codecSuite{})

func (s *codecSuite) TestDumpLoadRoundTrip(c *C) {
	p := compileFixtures(c, 30, "base.cil", "xperms.cil")
	c.Assert(p.Minimal(), IsNil)

	path := filepath.Join(c.MkDir(), "policy")
	c.Assert(p.Dump(path), IsNil)
	c.Check(path, testutil.FileEquals, mustBytes(c, p))
	st, err := os.Stat(path)
	c.Assert(err, IsNil)
	c.Check(st.Mode().Perm(), Equals, os.FileMode(0644))

	q, err := sepolicy.Load(path)
	c.Assert(err, IsNil)
	c.Check(q.Version(), Equals, uint32(30))
	c.Check(mustBytes(c, q), DeepEquals, mustBytes(c, p))
	c.Check(q.Types(), DeepEquals, p.Types())
	c.Check(q.IsPermissive("su"), Equals, true)
	c.Check(q.HasXperm(sepolicy.XpermAllow, "shell", "devpts", "chr_file", 0x5402), Equals, true)

	rp, err := p.Rules()
	c.Assert(err, IsNil)
	rq, err := q.Rules()
	c.Assert(err, IsNil)
	c.Check(rq, DeepEquals, rp)
}

func (s *codecSuite) TestDumpReplacesFile(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	path := filepath.Join(c.MkDir(), "policy")
	c.Assert(os.WriteFile(path, []byte("old content that is much longer than nothing"), 0600), IsNil)
	c.Assert(p.Dump(path), IsNil)
	c.Check(path, testutil.FileEquals, mustBytes(c, p))

	// no temporary files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	c.Assert(err, IsNil)
	c.Check(entries, HasLen, 1)
}

func (s *codecSuite) TestLoadMissing(c *C) {
	path := filepath.Join(c.MkDir(), "missing")
	p, err := sepolicy.Load(path)
	c.Check(p, IsNil)
	c.Assert(err, FitsTypeOf, &sepolicy.LoadError{})
	c.Check(err.(*sepolicy.LoadError).Path, Equals, path)
	c.Check(errors.Is(err, fs.ErrNotExist), Equals, true)
	c.Check(err, ErrorMatches, `cannot load policy from .*/missing: open .*: no such file or directory`)
}

func (s *codecSuite) TestLoadMalformed(c *C) {
	path := filepath.Join(c.MkDir(), "policy")
	c.Assert(os.WriteFile(path, []byte("this is not a policy at all"), 0644), IsNil)
	_, err := sepolicy.Load(path)
	c.Assert(err, FitsTypeOf, &sepolicy.LoadError{})
	c.Check(err, testutil.ErrorIs, policydb.ErrBadMagic)
	c.Check(err, ErrorMatches, `cannot load policy from .*: cannot read policy: got 0x[0-9a-f]+: policy magic number does not match`)
}

func (s *codecSuite) TestLoadTruncated(c *C) {
	data := mustBytes(c, compileFixtures(c, 30, "base.cil"))
	path := filepath.Join(c.MkDir(), "policy")
	c.Assert(os.WriteFile(path, data[:len(data)/2], 0644), IsNil)
	_, err := sepolicy.Load(path)
	c.Check(err, ErrorMatches, `cannot load policy from .*: cannot read policy: truncated data: .*`)
}

func (s *codecSuite) TestLoadUnsupportedVersion(c *C) {
	data := mustBytes(c, compileFixtures(c, 30, "base.cil"))
	binary.LittleEndian.PutUint32(data[16:], 34)
	path := filepath.Join(c.MkDir(), "policy")
	c.Assert(os.WriteFile(path, data, 0644), IsNil)
	_, err := sepolicy.Load(path)
	c.Check(err, testutil.ErrorIs, policydb.ErrUnsupportedVersion)
}

func (s *codecSuite) TestDumpLiveRefused(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	c.Check(sepolicy.IsLivePath(dirs.SELinuxLoadFile), Equals, true)
	c.Check(sepolicy.IsLivePath(dirs.SELinuxFSDir+"/../selinux/load"), Equals, true)
	c.Check(sepolicy.IsLivePath(dirs.SELinuxPolicyFile), Equals, false)

	err := p.Dump(dirs.SELinuxLoadFile)
	c.Assert(err, FitsTypeOf, &sepolicy.DumpError{})
	c.Check(err, testutil.ErrorIs, sepolicy.ErrLiveUnsupported)
	c.Check(err, ErrorMatches, `cannot dump policy to .*/load: the running kernel cannot load this policy format`)
	c.Check(dirs.SELinuxLoadFile, testutil.FileAbsent)

	c.Assert(os.MkdirAll(dirs.SELinuxFSDir, 0755), IsNil)
	c.Assert(os.WriteFile(dirs.SELinuxLoadFile, nil, 0600), IsNil)
	err = p.Dump(dirs.SELinuxLoadFile)
	c.Check(err, testutil.ErrorIs, sepolicy.ErrLiveUnsupported)
	c.Check(dirs.SELinuxLoadFile, testutil.FileEquals, "")
}

func (s *codecSuite) TestDumpErrors(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	path := filepath.Join(c.MkDir(), "no", "such", "dir", "policy")
	err := p.Dump(path)
	c.Assert(err, FitsTypeOf, &sepolicy.DumpError{})
	c.Check(err.(*sepolicy.DumpError).Path, Equals, path)
	c.Check(err, ErrorMatches, `cannot dump policy to .*/policy: .*`)

	c.Assert(p.Destroy(), IsNil)
	err = p.Dump(filepath.Join(c.MkDir(), "policy"))
	c.Check(err, testutil.ErrorIs, sepolicy.ErrDestroyed)
	c.Check(err, ErrorMatches, `cannot dump policy to .*: policy has been destroyed`)
}

func (s *codecSuite) TestLoadSplit(c *C) {
	p, err := sepolicy.LoadSplit([]string{"testdata/{base,xperms}.cil"})
	c.Assert(err, IsNil)
	c.Check(p.Version(), Equals, uint32(30))
	c.Check(p.Exists("system_server"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "shell", "devpts", "chr_file", "ioctl"), Equals, true)
	c.Check(p.HasXperm(sepolicy.XpermAllow, "shell", "devpts", "chr_file", 0x5403), Equals, true)
	c.Check(p.HasXperm(sepolicy.XpermAllow, "shell", "devpts", "chr_file", 0x5404), Equals, false)
	def, ok := p.TransitionDefault("init", "tmpfs", "file", "plain")
	c.Check(ok, Equals, true)
	c.Check(def, Equals, "rootfs")
	c.Check(s.logbuf.String(), testutil.Contains, "added testdata/base.cil to split policy")
}

func (s *codecSuite) TestLoadSplitCompiledConstructs(c *C) {
	p, err := sepolicy.LoadSplit([]string{"testdata/base.cil", "testdata/android.cil"})
	c.Assert(err, IsNil)

	c.Check(p.HasRule(sepolicy.Allow, "init", "init", "process", "fork"), Equals, true)

	c.Check(p.HasAttribute("init", "base_typeattr_1"), Equals, true)
	c.Check(p.HasAttribute("su", "base_typeattr_1"), Equals, false)
	c.Check(p.Allowed("init", "proc", "file", "read"), Equals, true)
	c.Check(p.Allowed("su", "proc", "file", "read"), Equals, false)

	c.Check(p.HasAttribute("system_app", "base_typeattr_2"), Equals, true)
	c.Check(p.HasAttribute("untrusted_app", "base_typeattr_2"), Equals, false)
	c.Check(p.HasRule(sepolicy.Allow, "platform_app", "platform_app", "process", "sigchld"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "priv_app", "priv_app", "process", "sigchld"), Equals, false)

	c.Check(p.Exists("sh_exec"), Equals, false)
	c.Check(p.HasRule(sepolicy.Allow, "shell", "shell_exec", "file", "execute"), Equals, true)
}

func (s *codecSuite) TestLoadSplitFromSystemPartitions(c *C) {
	data, err := os.ReadFile("testdata/base.cil")
	c.Assert(err, IsNil)
	plat := filepath.Join(dirs.GlobalRootDir, "system/etc/selinux/plat_sepolicy.cil")
	c.Assert(os.MkdirAll(filepath.Dir(plat), 0755), IsNil)
	c.Assert(os.WriteFile(plat, data, 0644), IsNil)
	data, err = os.ReadFile("testdata/samsung.cil")
	c.Assert(err, IsNil)
	vendor := filepath.Join(dirs.GlobalRootDir, "vendor/etc/selinux/vendor_sepolicy.cil")
	c.Assert(os.MkdirAll(filepath.Dir(vendor), 0755), IsNil)
	c.Assert(os.WriteFile(vendor, data, 0644), IsNil)

	files, err := sepolicy.SplitFiles(dirs.SplitPolicyGlobs)
	c.Assert(err, IsNil)
	c.Check(files, DeepEquals, []string{plat, vendor})

	p, err := sepolicy.LoadSplit(dirs.SplitPolicyGlobs)
	c.Assert(err, IsNil)
	c.Check(p.Exists("knox_system_app"), Equals, true)
}

func (s *codecSuite) TestLoadSplitErrors(c *C) {
	dir := c.MkDir()
	_, err := sepolicy.LoadSplit([]string{filepath.Join(dir, "*.cil")})
	c.Assert(err, FitsTypeOf, &sepolicy.LoadError{})
	c.Check(err, ErrorMatches, `cannot load policy from .*: no CIL files found`)

	_, err = sepolicy.LoadSplit([]string{"testdata/[base.cil"})
	c.Check(err, ErrorMatches, `cannot load policy from testdata/\[base.cil: invalid pattern "testdata/\[base.cil"`)

	c.Assert(os.WriteFile(filepath.Join(dir, "broken.cil"), []byte("(type foo"), 0644), IsNil)
	_, err = sepolicy.LoadSplit([]string{filepath.Join(dir, "*.cil")})
	c.Check(err, ErrorMatches, `cannot load policy from .*: .*broken.cil:1: unbalanced '\('`)

	_, err = sepolicy.LoadSplit([]string{"testdata/samsung.cil"})
	c.Check(err, ErrorMatches, `cannot load policy from testdata/samsung.cil: .*`)
}

func (s *codecSuite) TestSplitFiles(c *C) {
	dir := c.MkDir()
	for _, name := range []string{"b.cil", "a.cil", "sub/c.cil", "sub/skip.txt"} {
		path := filepath.Join(dir, name)
		c.Assert(os.MkdirAll(filepath.Dir(path), 0755), IsNil)
		c.Assert(os.WriteFile(path, nil, 0644), IsNil)
	}
	files, err := sepolicy.SplitFiles([]string{
		filepath.Join(dir, "**/*.cil"),
		filepath.Join(dir, "a.cil"),
		filepath.Join(dir, "missing.cil"),
	})
	c.Assert(err, IsNil)
	c.Check(files, DeepEquals, []string{
		filepath.Join(dir, "a.cil"),
		filepath.Join(dir, "b.cil"),
		filepath.Join(dir, "sub/c.cil"),
	})
}
