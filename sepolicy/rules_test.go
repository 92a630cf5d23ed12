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
	. "gopkg.in/check.v1"

	"github.com/snapcore/sepatch/sepolicy"
	"github.com/snapcore/sepatch/testutil"
)

type rulesSuite struct {
	baseSuite
}

var _ = Suite(&rulesSuite{})

func (s *rulesSuite) TestMinimal(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	c.Assert(p.Minimal(), IsNil)

	c.Check(p.Exists(sepolicy.SuDomain), Equals, true)
	c.Check(p.Exists(sepolicy.SuDevice), Equals, true)
	c.Check(p.IsPermissive("su"), Equals, true)
	c.Check(p.IsPermissive("init"), Equals, true)
	c.Check(p.IsPermissive("shell"), Equals, false)
	c.Check(p.HasAttribute("su", "mlstrustedsubject"), Equals, true)
	c.Check(p.HasAttribute("su_device", "mlstrustedobject"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "su", "kernel", "security", "load_policy"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "su", "su", "capability", "sys_admin"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "su", "system_prop", "property_service", "set"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "init", "su", "process", "transition"), Equals, true)
	// the medium rules are not there yet
	c.Check(p.HasRule(sepolicy.Allow, "su", "app_data_file", "file", "read"), Equals, false)

	// every domain may use any ioctl on ptys
	c.Check(p.HasXperm(sepolicy.XpermAllow, "untrusted_app", "devpts", "chr_file", 0x1234), Equals, true)
	c.Check(p.HasXperm(sepolicy.XpermAllow, "su", "devpts", "chr_file", 0xffff), Equals, true)

	c.Check(s.logbuf.String(), testutil.Contains, `skipping samsung rules: missing types "knox_system_app", "security_spota_file"`)
}

func (s *rulesSuite) TestMinimalIsIdempotent(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	c.Assert(p.Minimal(), IsNil)
	once := mustBytes(c, p)
	s.logbuf.Reset()

	c.Assert(p.Minimal(), IsNil)
	c.Check(mustBytes(c, p), DeepEquals, once)
	c.Check(s.logbuf.String(), Not(testutil.Contains), "already exists")
}

func (s *rulesSuite) TestMinimalWithoutXperms(c *C) {
	p := compileFixtures(c, 29, "base.cil")
	c.Assert(p.Minimal(), IsNil)
	c.Check(p.HasXperm(sepolicy.XpermAllow, "su", "devpts", "chr_file", 0x5401), Equals, false)
	c.Check(p.HasRule(sepolicy.Allow, "su", "devpts", "chr_file", "ioctl"), Equals, true)
	c.Check(s.logbuf.String(), testutil.Contains, "DEBUG: skipping devpts ioctl rules: policy version 29 has no extended permissions")
}

func (s *rulesSuite) TestMinimalSamsung(c *C) {
	p := compileFixtures(c, 30, "base.cil", "samsung.cil")
	c.Assert(p.HasRule(sepolicy.Allow, "policyloader_app", "security_spota_file", "file", "write"), Equals, true)
	c.Assert(p.Allowed("policyloader_app", "kernel", "security", "load_policy"), Equals, true)

	c.Assert(p.Minimal(), IsNil)

	for _, class := range []string{"dir", "file"} {
		for _, perm := range p.Perms(class) {
			c.Check(p.HasRule(sepolicy.Allow, "policyloader_app", "security_spota_file", class, perm), Equals, false)
			c.Check(p.HasRule(sepolicy.Allow, "system_server", "security_spota_file", class, perm), Equals, false)
		}
	}
	c.Check(p.Allowed("policyloader_app", "kernel", "security", "load_policy"), Equals, false)
	c.Check(p.Allowed("init", "kernel", "security", "load_policy"), Equals, false)
	c.Check(p.Allowed("init", "kernel", "security", "read_policy"), Equals, false)
	c.Check(p.Allowed("init", "kernel", "security", "setenforce"), Equals, true)
	// su keeps its own access
	c.Check(p.Allowed("su", "kernel", "security", "load_policy"), Equals, true)
	c.Check(s.logbuf.String(), Not(testutil.Contains), "skipping samsung rules")
}

func (s *rulesSuite) TestMedium(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	c.Assert(p.Medium(), IsNil)

	// minimal is part of medium
	c.Check(p.IsPermissive("su"), Equals, true)

	for _, client := range []string{"shell", "untrusted_app", "system_app", "platform_app", "priv_app"} {
		c.Check(p.HasRule(sepolicy.Allow, client, "su", "unix_stream_socket", "connectto"), Equals, true, Commentf("%s", client))
		c.Check(p.HasRule(sepolicy.Allow, "su", client, "process", "sigchld"), Equals, true, Commentf("%s", client))
		c.Check(p.HasXperm(sepolicy.XpermAllow, client, "devpts", "chr_file", 0x5413), Equals, true, Commentf("%s", client))
	}
	c.Check(p.HasRule(sepolicy.Allow, "su", "app_data_file", "file", "write"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "su", "selinuxfs", "blk_file", "read"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "su", "system_server", "binder", "call"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "audioserver", "audioserver", "process", "execmem"), Equals, true)
	c.Check(p.HasAttribute("su", "netdomain"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "kernel", "su", "process", "sigchld"), Equals, true)
	// not full yet
	c.Check(p.HasRule(sepolicy.Allow, "su", "kernel", "binder", "impersonate"), Equals, false)

	c.Check(s.logbuf.String(), testutil.Contains, `skipping liveboot rules: missing types "liveboot"`)
}

func (s *rulesSuite) TestMediumExtraClients(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	c.Assert(p.Medium("logd", "shell", "logd"), IsNil)
	c.Check(p.HasRule(sepolicy.Allow, "logd", "su", "fd", "use"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "su", "logd", "file", "open"), Equals, true)
	c.Check(s.logbuf.String(), testutil.Contains, `DEBUG: client domain "shell" is already a builtin client`)
	c.Check(s.logbuf.String(), testutil.Contains, `DEBUG: client domain "logd" is already a builtin client`)
}

func (s *rulesSuite) TestMediumMissingClient(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	err := p.Medium("ghost_app")
	c.Assert(err, FitsTypeOf, sepolicy.ApplyErrors{})
	c.Check(err, testutil.ErrorIs, sepolicy.ErrNotFound)
	for _, e := range err.(sepolicy.ApplyErrors) {
		c.Check(e.Rule, Matches, `.*ghost_app.*`)
	}
	// everything else was applied
	c.Check(p.HasRule(sepolicy.Allow, "shell", "su", "fd", "use"), Equals, true)
	c.Check(p.HasRule(sepolicy.Allow, "system_server", "su", "binder", "call"), Equals, true)
}

func (s *rulesSuite) TestFull(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	c.Assert(p.Full(), IsNil)
	for _, class := range p.Classes() {
		for _, perm := range p.Perms(class) {
			c.Check(p.HasRule(sepolicy.Allow, "su", "kernel", class, perm), Equals, true, Commentf("%s %s", class, perm))
		}
	}
	c.Check(p.HasRule(sepolicy.Allow, "shell", "su", "unix_stream_socket", "connectto"), Equals, true)
	// attributes are left alone
	c.Check(p.HasRule(sepolicy.Allow, "su", "domain", "file", "read"), Equals, false)
}

func (s *rulesSuite) TestFullIsIdempotent(c *C) {
	p := compileFixtures(c, 30, "base.cil", "samsung.cil")
	c.Assert(p.Full(), IsNil)
	once := mustBytes(c, p)
	c.Assert(p.Full(), IsNil)
	c.Check(mustBytes(c, p), DeepEquals, once)
}
