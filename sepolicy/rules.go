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
	"strings"

	"github.com/snapcore/sepatch/logger"
	"github.com/snapcore/sepatch/strutil"
)

const (
	// SuDomain is the domain root shells run in.
	SuDomain = "su"
	// SuDevice is the type of the su daemon sockets and device nodes.
	SuDevice = "su_device"
)

// ClientDomains may call su in the medium and full rule sets.
var ClientDomains = []string{"shell", "untrusted_app", "system_app", "platform_app"}

// OptionalClientDomains are added to ClientDomains when the policy
// defines them.
var OptionalClientDomains = []string{"priv_app", "ssd_tool", "untrusted_app_25"}

// A ruleBundle is a named list of statements. When guard is set, the
// bundle only applies if every guard type exists.
type ruleBundle struct {
	name   string
	guard  []string
	xperms bool
	rules  []string
}

var minimalRules = ruleBundle{
	name: "minimal",
	rules: []string{
		"permissive { su init }",
		"attradd su mlstrustedsubject",
		"attradd su_device mlstrustedobject",

		// init may run things in the su context
		"allow kernel su fd use",
		"allow init su process *",
		"allow init su fd use",
		"allow init su fifo_file *",
		"allow init system_file dir *",
		"allow init system_file file *",
		"allow init system_file lnk_file *",

		"allow su init process { sigchld transition }",
		"allow su init fd use",
		"allow su init unix_stream_socket connectto",
		"allow su property_socket sock_file write",
		"allow su { default_prop system_prop } property_service set",
		"allow su su process *",
		"allow su su capability *",
		"allow su su capability2 *",
		"allow su su fifo_file *",
		"allow su su unix_stream_socket *",
		"allow su su unix_dgram_socket *",
		"allow su su_device dir *",
		"allow su su_device file *",
		"allow su su_device sock_file *",
		"allow su su_device lnk_file *",
		"allow su devpts chr_file *",
		"allow su { rootfs tmpfs system_file } dir *",
		"allow su { rootfs tmpfs system_file } file *",
		"allow su system_file lnk_file *",
		"allow su { shell_exec toolbox_exec } file *",
		"allow su { proc selinuxfs } dir *",
		"allow su { proc selinuxfs } file *",
		"allow su kernel security { read_policy load_policy }",
		"allow su kernel system syslog_read",
	},
}

// samsungRules close the policy update hole of Samsung's security
// policy updater.
var samsungRules = ruleBundle{
	name:  "samsung",
	guard: []string{"knox_system_app", "security_spota_file"},
	rules: []string{
		"deny init kernel security { read_policy load_policy }",
		"deny policyloader_app security_spota_file dir *",
		"deny policyloader_app security_spota_file file *",
		"deny system_server security_spota_file dir *",
		"deny system_server security_spota_file file *",
		"deny system_app security_spota_file dir *",
		"deny system_app security_spota_file file *",
		"deny installd security_spota_file dir *",
		"deny installd security_spota_file file *",
		"deny init security_spota_file dir *",
		"deny init security_spota_file file *",
		"deny ueventd security_spota_file dir *",
		"deny ueventd security_spota_file file *",
		"deny runas security_spota_file dir *",
		"deny runas security_spota_file file *",
		"deny vold security_spota_file dir *",
		"deny vold security_spota_file file *",
		"deny zygote security_spota_file dir *",
		"deny zygote security_spota_file file *",
		"deny servicemanager security_spota_file dir *",
		"deny servicemanager security_spota_file file *",
		"deny knox_system_app security_spota_file dir *",
		"deny knox_system_app security_spota_file file *",
		"deny { policyloader_app system_server system_app installd init ueventd runas vold zygote servicemanager knox_system_app } kernel security load_policy",
	},
}

var devptsXpermRules = ruleBundle{
	name:   "devpts ioctl",
	xperms: true,
	rules: []string{
		"allowxperm * devpts chr_file ioctl 0x0000-0xFFFF",
	},
}

var suAccessRules = ruleBundle{
	name: "su access",
	rules: []string{
		"allow su * file *",
		"allow su * dir *",
		"allow su * lnk_file *",
		"allow su * blk_file *",
		"allow su * chr_file *",
	},
}

// clientRules are instantiated once per client domain, replacing CLIENT.
var clientRules = []string{
	"allow CLIENT su unix_stream_socket { connectto getopt read write }",
	"allow CLIENT su_device dir { search read getattr }",
	"allow CLIENT su_device sock_file { read write getattr }",
	"allow CLIENT su fd use",
	"allow CLIENT su fifo_file { read write getattr ioctl }",
	"allow CLIENT devpts chr_file { read write getattr ioctl }",
	"allow su CLIENT fd use",
	"allow su CLIENT fifo_file { read write getattr }",
	"allow su CLIENT process { sigchld getattr }",
	"allow su CLIENT dir { search getattr }",
	"allow su CLIENT file { read open getattr }",
}

var clientXpermRules = []string{
	"allowxperm CLIENT devpts chr_file ioctl 0x5400-0x54FF",
}

var binderRules = ruleBundle{
	name: "binder",
	rules: []string{
		"allow servicemanager su dir search",
		"allow servicemanager su file { read open }",
		"allow servicemanager su process getattr",
		"allow servicemanager su binder transfer",
		"allow su servicemanager binder call",
		"allow su system_server binder { call transfer }",
		"allow system_server su binder { call transfer }",
		"allow system_server su fd use",
		"allow system_server su fifo_file { read write getattr }",
		"allow system_server su process { getpgid sigchld }",
	},
}

var miscRules = ruleBundle{
	name: "misc",
	rules: []string{
		"allow logd su dir search",
		"allow logd su file { read open getattr }",
		// file managers talking to su over sockets
		"allow untrusted_app su unix_stream_socket { read write getattr ioctl }",
		"allow untrusted_app su tcp_socket { read write getattr ioctl }",
		"allow * su process sigchld",
		"attradd su { netdomain bluetoothdomain }",
		"allow surfaceflinger app_data_file dir { search getattr }",
		"allow surfaceflinger app_data_file file { read open getattr }",
		"attradd surfaceflinger mlstrustedsubject",
	},
}

var audioserverRules = ruleBundle{
	name:  "audioserver",
	guard: []string{"audioserver"},
	rules: []string{
		"allow audioserver audioserver process execmem",
	},
}

var livebootRules = ruleBundle{
	name:  "liveboot",
	guard: []string{"liveboot"},
	rules: []string{
		"allow liveboot * process ptrace",
		"allow liveboot * binder { call transfer }",
		"allow liveboot * fd use",
		"allow * liveboot fd use",
	},
}

var fullRules = ruleBundle{
	name: "full",
	rules: []string{
		"allow su * * *",
	},
}

// mergeApplyErrors appends the rule failures carried by err to errs. Any
// other error is returned.
func mergeApplyErrors(errs *ApplyErrors, err error) error {
	if err == nil {
		return nil
	}
	applyErrs, ok := err.(ApplyErrors)
	if !ok {
		return err
	}
	*errs = append(*errs, applyErrs...)
	return nil
}

func (errs ApplyErrors) orNil() error {
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// applyBundle applies the statements of b in order. Statements failing
// to parse are programming errors and panic.
func (p *Policy) applyBundle(b ruleBundle) error {
	if err := p.check(); err != nil {
		return err
	}
	if b.xperms && !p.SupportsXperms() {
		logger.Debugf("skipping %s rules: policy version %d has no extended permissions", b.name, p.Version())
		return nil
	}
	var missing []string
	for _, g := range b.guard {
		if !p.Exists(g) {
			missing = append(missing, g)
		}
	}
	if len(missing) > 0 {
		logger.Noticef("skipping %s rules: missing types %s", b.name, strutil.Quoted(missing))
		return nil
	}
	var errs ApplyErrors
	for _, text := range b.rules {
		stmt, err := ParseStatement(text)
		if err != nil {
			logger.Panicf("invalid builtin rule: %v", err)
		}
		if err := mergeApplyErrors(&errs, p.Apply(stmt)); err != nil {
			return err
		}
	}
	return errs.orNil()
}

func clientBundle(client string, xperms bool) ruleBundle {
	templates := clientRules
	if xperms {
		templates = clientXpermRules
	}
	b := ruleBundle{name: "client " + client, xperms: xperms}
	for _, t := range templates {
		b.rules = append(b.rules, strings.ReplaceAll(t, "CLIENT", client))
	}
	return b
}

func (p *Policy) applyBundles(bundles ...ruleBundle) error {
	var errs ApplyErrors
	for _, b := range bundles {
		if err := mergeApplyErrors(&errs, p.applyBundle(b)); err != nil {
			return err
		}
	}
	return errs.orNil()
}

// Minimal makes su usable: it creates the su domain and device type,
// makes su and init permissive, wires the basic su rules, closes vendor
// specific holes and lets every domain use ioctls on ptys. Rules naming
// types the policy lacks are reported in the returned ApplyErrors.
func (p *Policy) Minimal() error {
	if err := p.check(); err != nil {
		return err
	}
	for _, t := range []string{SuDomain, SuDevice} {
		if !p.Exists(t) {
			if err := p.CreateType(t); err != nil {
				return err
			}
		}
	}
	return p.applyBundles(minimalRules, samsungRules, devptsXpermRules)
}

// Medium applies Minimal, then gives su free access to files and lets the
// client domains, plus extraClients, call su.
func (p *Policy) Medium(extraClients ...string) error {
	var errs ApplyErrors
	if err := mergeApplyErrors(&errs, p.Minimal()); err != nil {
		return err
	}

	clients := append([]string(nil), ClientDomains...)
	for _, c := range OptionalClientDomains {
		if p.Exists(c) {
			clients = append(clients, c)
		}
	}
	for _, c := range extraClients {
		if strutil.ListContains(clients, c) {
			logger.Debugf("client domain %q is already a builtin client", c)
			continue
		}
		clients = append(clients, c)
	}

	bundles := []ruleBundle{suAccessRules}
	for _, c := range clients {
		bundles = append(bundles, clientBundle(c, false), clientBundle(c, true))
	}
	bundles = append(bundles, binderRules, miscRules, audioserverRules, livebootRules)
	if err := mergeApplyErrors(&errs, p.applyBundles(bundles...)); err != nil {
		return err
	}
	return errs.orNil()
}

// Full applies Medium and then allows su everything.
func (p *Policy) Full(extraClients ...string) error {
	var errs ApplyErrors
	if err := mergeApplyErrors(&errs, p.Medium(extraClients...)); err != nil {
		return err
	}
	if err := mergeApplyErrors(&errs, p.applyBundle(fullRules)); err != nil {
		return err
	}
	return errs.orNil()
}
