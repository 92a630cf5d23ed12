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

	"github.com/snapcore/sepatch/policydb"
	"github.com/snapcore/sepatch/sepolicy"
)

type printSuite struct {
	baseSuite
}

var _ = Suite(&printSuite{})

var printedRules = []string{
	"attradd init domain",
	"permissive kernel",
	"allowxperm kernel kernel chr_file ioctl 0x0000-0x01FF",
	"allow init kernel file { read write }",
	"auditallow init kernel file read",
	"auditdeny init kernel process sigchld",
	"allowxperm init kernel chr_file ioctl 0x5400-0x5402",
	"allowxperm init kernel chr_file ioctl 0x5410",
	"typetrans init tmpfs file rootfs",
	"typetrans init tmpfs file kernel plain",
}

func (s *printSuite) TestRules(c *C) {
	p := tinyPolicy(c, 30)
	for _, line := range []string{
		"typetrans init tmpfs file kernel plain",
		"allow init kernel file write",
		"allowxperm init kernel chr_file ioctl 0x5410",
		"auditdeny init kernel process sigchld",
		"allowxperm kernel kernel chr_file ioctl 0x0000-0x01FF",
		"attradd init domain",
		"allow init kernel file read",
		"typetrans init tmpfs file rootfs",
		"allowxperm init kernel chr_file ioctl 0x5400-0x5402",
		"auditallow init kernel file read",
		"permissive kernel",
	} {
		c.Assert(p.Apply(mustParse(c, line)), IsNil)
	}
	rules, err := p.Rules()
	c.Assert(err, IsNil)
	c.Check(rules, DeepEquals, printedRules)
}

func (s *printSuite) TestRulesRebuildPolicy(c *C) {
	p := tinyPolicy(c, 30)
	for _, line := range printedRules {
		c.Assert(p.Apply(mustParse(c, line)), IsNil)
	}
	rules, err := p.Rules()
	c.Assert(err, IsNil)

	q := tinyPolicy(c, 30)
	for _, line := range rules {
		c.Assert(q.Apply(mustParse(c, line)), IsNil)
	}
	c.Check(mustBytes(c, q), DeepEquals, mustBytes(c, p))
}

func (s *printSuite) TestRulesOfCompiledPolicy(c *C) {
	p := compileFixtures(c, 30, "base.cil")
	rules, err := p.Rules()
	c.Assert(err, IsNil)
	c.Check(rules, DeepEquals, []string{
		"attradd kernel domain",
		"attradd kernel mlstrustedsubject",
		"attradd init domain",
		"attradd init mlstrustedsubject",
		"attradd shell domain",
		"attradd untrusted_app domain",
		"attradd untrusted_app appdomain",
		"attradd untrusted_app netdomain",
		"attradd system_app domain",
		"attradd system_app appdomain",
		"attradd platform_app domain",
		"attradd platform_app appdomain",
		"attradd priv_app domain",
		"attradd priv_app appdomain",
		"attradd servicemanager domain",
		"attradd system_server domain",
		"attradd system_server netdomain",
		"attradd logd domain",
		"attradd surfaceflinger domain",
		"attradd audioserver domain",
		"attradd system_file file_type",
		"attradd shell_exec file_type",
		"attradd toolbox_exec file_type",
		"attradd app_data_file file_type",
		"allow domain system_file file { read getattr execute open }",
		"allow appdomain app_data_file dir { read getattr search }",
		"allow init kernel security { load_policy setenforce read_policy }",
		"typetrans init tmpfs file rootfs",
		"allow shell devpts chr_file { ioctl read write }",
		"typetrans init tmpfs file rootfs plain",
	})
}

func (s *printSuite) TestRulesSkipEmptyEntries(c *C) {
	db, err := policydb.New(30)
	c.Assert(err, IsNil)
	file, err := db.AddClass("file", "read")
	c.Assert(err, IsNil)
	initT, err := db.AddType("init", false)
	c.Assert(err, IsNil)
	key := policydb.AvtabKey{SourceType: uint16(initT.Value), TargetType: uint16(initT.Value), TargetClass: uint16(file.Value), Specified: policydb.AvtabAllowed}
	c.Assert(db.Avtab().Insert(key, &policydb.AvtabDatum{}), IsNil)
	key.Specified = policydb.AvtabAuditAllow
	// only a permission bit the class does not name
	c.Assert(db.Avtab().Insert(key, &policydb.AvtabDatum{Data: 0x80}), IsNil)

	rules, err := sepolicy.FromPolicyDB(db).Rules()
	c.Assert(err, IsNil)
	c.Check(rules, HasLen, 0)
}

func (s *printSuite) TestRulesSingleDriver(c *C) {
	db, err := policydb.New(30)
	c.Assert(err, IsNil)
	chr, err := db.AddClass("chr_file", "ioctl")
	c.Assert(err, IsNil)
	initT, err := db.AddType("init", false)
	c.Assert(err, IsNil)
	key := policydb.AvtabKey{SourceType: uint16(initT.Value), TargetType: uint16(initT.Value), TargetClass: uint16(chr.Value), Specified: policydb.AvtabXpermsAllowed}
	x := &policydb.Xperms{Specified: policydb.XpermsIoctlDriver}
	x.Set(0x54)
	c.Assert(db.Avtab().Insert(key, &policydb.AvtabDatum{Xperms: x}), IsNil)
	p := sepolicy.FromPolicyDB(db)

	rules, err := p.Rules()
	c.Assert(err, IsNil)
	c.Check(rules, DeepEquals, []string{"allowxperm init init chr_file ioctl 0x5400-0x54FF"})

	// applied again, the same commands are granted by a function-level entry
	q := tinyPolicy(c, 30)
	c.Assert(q.Apply(mustParse(c, "allowxperm init init chr_file ioctl 0x5400-0x54FF")), IsNil)
	for _, cmd := range []uint16{0x5400, 0x5480, 0x54ff} {
		c.Check(p.HasXperm(sepolicy.XpermAllow, "init", "init", "chr_file", cmd), Equals, true)
		c.Check(q.HasXperm(sepolicy.XpermAllow, "init", "init", "chr_file", cmd), Equals, true)
	}
	c.Check(q.HasXperm(sepolicy.XpermAllow, "init", "init", "chr_file", 0x5500), Equals, false)
	rules, err = q.Rules()
	c.Assert(err, IsNil)
	c.Check(rules, DeepEquals, []string{"allowxperm init init chr_file ioctl 0x5400-0x54FF"})
}
