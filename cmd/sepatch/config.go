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
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v2"

	"github.com/snapcore/sepatch/dirs"
)

// config holds the settings of /etc/sepatch/config.yaml. Missing keys keep
// their defaults.
type config struct {
	LivePolicy    string          `yaml:"live-policy"`
	SplitPolicy   []string        `yaml:"split-policy"`
	ClientDomains []domainPattern `yaml:"client-domains"`
}

// domainPattern is a domain name or a glob matching domain names, like
// "untrusted_app*".
type domainPattern struct {
	raw string
	glob.Glob
}

func (p *domainPattern) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	g, err := glob.Compile(raw)
	if err != nil {
		return fmt.Errorf("invalid client domain pattern %q: %v", raw, err)
	}
	*p = domainPattern{raw: raw, Glob: g}
	return nil
}

func (p domainPattern) isLiteral() bool {
	return !strings.ContainsAny(p.raw, "*?[{")
}

// clientDomains resolves the configured client domains against the types
// of the policy. Plain names are kept even when missing so that their
// rules get reported.
func (cfg *config) clientDomains(types []string) []string {
	var out []string
	for _, p := range cfg.ClientDomains {
		if p.isLiteral() {
			out = append(out, p.raw)
			continue
		}
		for _, t := range types {
			if p.Match(t) {
				out = append(out, t)
			}
		}
	}
	return out
}

func defaultConfig() *config {
	return &config{
		LivePolicy:  dirs.SELinuxPolicyFile,
		SplitPolicy: append([]string(nil), dirs.SplitPolicyGlobs...),
	}
}

// readConfig reads the configuration at path. Without an explicit path
// the default location is tried and may be absent.
func readConfig(path string) (*config, error) {
	explicit := path != ""
	if !explicit {
		path = dirs.SepatchConfigFile
	}
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read configuration: %v", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse configuration %s: %v", path, err)
	}
	if cfg.LivePolicy == "" {
		return nil, fmt.Errorf("invalid configuration %s: live-policy cannot be empty", path)
	}
	return cfg, nil
}
