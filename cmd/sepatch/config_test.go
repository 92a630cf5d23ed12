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

package main_test

import (
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"

	sepatch "github.com/snapcore/sepatch/cmd/sepatch"
	"github.com/snapcore/sepatch/dirs"
)

type configSuite struct{}

var _ = Suite(&configSuite{})

func (s *configSuite) SetUpTest(c *C) {
	dirs.SetRootDir(c.MkDir())
}

func (s *configSuite) TearDownTest(c *C) {
	dirs.SetRootDir("")
}

func (s *configSuite) writeConfig(c *C, content string) string {
	path := filepath.Join(c.MkDir(), "config.yaml")
	c.Assert(os.WriteFile(path, []byte(content), 0644), IsNil)
	return path
}

func (s *configSuite) TestDefaults(c *C) {
	cfg, err := sepatch.ReadConfig("")
	c.Assert(err, IsNil)
	c.Check(cfg.LivePolicy, Equals, dirs.SELinuxPolicyFile)
	c.Check(cfg.SplitPolicy, DeepEquals, dirs.SplitPolicyGlobs)
	c.Check(cfg.ClientDomains, HasLen, 0)
}

func (s *configSuite) TestReadConfig(c *C) {
	path := s.writeConfig(c, `
live-policy: /policy
split-policy:
  - /etc/selinux/**/*.cil
client-domains:
  - logd
`)
	cfg, err := sepatch.ReadConfig(path)
	c.Assert(err, IsNil)
	c.Check(cfg.LivePolicy, Equals, "/policy")
	c.Check(cfg.SplitPolicy, DeepEquals, []string{"/etc/selinux/**/*.cil"})
	c.Check(cfg.ResolveClientDomains(nil), DeepEquals, []string{"logd"})
}

func (s *configSuite) TestReadConfigDefaultLocation(c *C) {
	c.Assert(os.MkdirAll(filepath.Dir(dirs.SepatchConfigFile), 0755), IsNil)
	c.Assert(os.WriteFile(dirs.SepatchConfigFile, []byte("live-policy: /elsewhere\n"), 0644), IsNil)
	cfg, err := sepatch.ReadConfig("")
	c.Assert(err, IsNil)
	c.Check(cfg.LivePolicy, Equals, "/elsewhere")
	c.Check(cfg.SplitPolicy, DeepEquals, dirs.SplitPolicyGlobs)
}

func (s *configSuite) TestReadConfigErrors(c *C) {
	for _, t := range []struct {
		content string
		err     string
	}{
		{"bogus: 1\n", `(?s)cannot parse configuration .*field bogus not found.*`},
		{"split-policy: foo\n", `(?s)cannot parse configuration .*cannot unmarshal.*`},
		{"live-policy: ''\n", `invalid configuration .*: live-policy cannot be empty`},
		{"live-load: /load\n", `(?s)cannot parse configuration .*field live-load not found.*`},
		{"client-domains: ['[']\n", `cannot parse configuration .*: invalid client domain pattern "\[": .*`},
	} {
		_, err := sepatch.ReadConfig(s.writeConfig(c, t.content))
		c.Check(err, ErrorMatches, t.err, Commentf("%q", t.content))
	}
}

func (s *configSuite) TestClientDomainPatterns(c *C) {
	cfg, err := sepatch.ReadConfig(s.writeConfig(c, `
client-domains: ["*_app", logd, ghost, "nomatch*", "untrusted_app_2?"]
`))
	c.Assert(err, IsNil)
	types := []string{"kernel", "untrusted_app", "system_app", "logd", "untrusted_app_25", "app_data_file"}
	c.Check(cfg.ResolveClientDomains(types), DeepEquals, []string{
		"untrusted_app", "system_app", "logd", "ghost", "untrusted_app_25",
	})
}
