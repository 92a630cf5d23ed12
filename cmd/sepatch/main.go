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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"

	"github.com/snapcore/sepatch/dirs"
	"github.com/snapcore/sepatch/logger"
	"github.com/snapcore/sepatch/policydb"
	"github.com/snapcore/sepatch/release"
	"github.com/snapcore/sepatch/sepolicy"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

const statementHelp = `One policy statement per argument, or per line of an --apply file.

Statements:
  allow|deny|auditallow|auditdeny SOURCE TARGET CLASS PERM
  allowxperm|auditallowxperm|dontauditxperm SOURCE TARGET CLASS ioctl RANGE
  attradd TYPE ATTRIBUTE
  create|permissive|enforce TYPE
  typetrans SOURCE TARGET CLASS DEFAULT [FILENAME]

SOURCE, TARGET, CLASS, PERM, TYPE and ATTRIBUTE can be a name, '*' for
all of them or a set written as '{ name1 name2 }'. CLASS cannot be a set
in access rules and typetrans takes single names only. RANGE is an ioctl
number or range in hex, like 0x5401 or 0x8900-0x89FF.

Examples:
  allow { source1 source2 } target class { perm1 perm2 }
  allow * * file read
  allowxperm untrusted_app devpts chr_file ioctl 0x5400-0x54FF
  typetrans init tmpfs file rootfs_file myfile
`

type options struct {
	Live         bool     `long:"live" description:"load the edited policy into the running kernel"`
	Minimal      bool     `long:"minimal" description:"apply the minimal rules needed by su"`
	Medium       bool     `long:"medium" description:"apply the minimal rules and let client domains call su"`
	Full         bool     `long:"full" description:"apply the medium rules and allow su everything"`
	Load         string   `long:"load" value-name:"FILE" description:"load the binary policy from FILE instead of the running one"`
	LoadSplit    bool     `long:"load-split" description:"compile the split CIL policy of the system partitions"`
	CompileSplit bool     `long:"compile-split" description:"same as --load-split"`
	Save         string   `long:"save" value-name:"FILE" description:"dump the edited binary policy to FILE"`
	Apply        []string `long:"apply" value-name:"FILE" description:"read statements from FILE, one per line (can be repeated)"`
	PrintRules   bool     `long:"print-rules" description:"print the rules of the edited policy as statements"`
	Config       string   `long:"config" value-name:"FILE" description:"use FILE instead of the default configuration"`
	Debug        bool     `long:"debug" description:"enable debug output"`

	Positional struct {
		Statements []string `positional-arg-name:"statement"`
	} `positional-args:"yes"`
}

var errSyntax = errors.New("some statements could not be parsed")

func parseArgs(args []string) (*options, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] [statement...]"
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if opts.Load != "" && (opts.LoadSplit || opts.CompileSplit) {
		return nil, fmt.Errorf("cannot use --load together with --load-split")
	}
	return &opts, nil
}

func loadPolicy(opts *options, cfg *config) (*sepolicy.Policy, error) {
	if opts.LoadSplit || opts.CompileSplit {
		return sepolicy.LoadSplit(cfg.SplitPolicy)
	}
	if opts.Load != "" {
		return sepolicy.Load(opts.Load)
	}
	pol, err := sepolicy.Load(cfg.LivePolicy)
	if errors.Is(err, policydb.ErrKernelLayout) {
		return nil, fmt.Errorf("%v (use --load-split to compile the split policy instead)", err)
	}
	return pol, err
}

func builtinRules(pol *sepolicy.Policy, opts *options, cfg *config) error {
	switch {
	case opts.Full:
		return pol.Full(cfg.clientDomains(pol.Types())...)
	case opts.Medium:
		return pol.Medium(cfg.clientDomains(pol.Types())...)
	case opts.Minimal:
		return pol.Minimal()
	}
	return nil
}

// reportApplyErrors prints the rules that could not be applied. Anything
// else is returned.
func reportApplyErrors(err error) error {
	var errs sepolicy.ApplyErrors
	if !errors.As(err, &errs) {
		return err
	}
	red := color.New(color.FgRed)
	for _, e := range errs {
		red.Fprintf(stderr, "Error in: %s\n", e.Rule)
		logger.Debugf("%v", e)
	}
	return nil
}

// applyStatements parses and applies every statement. It returns false
// if any of them had a syntax error.
func applyStatements(pol *sepolicy.Policy, statements []string) (bool, error) {
	ok := true
	for _, line := range statements {
		stmt, err := sepolicy.ParseStatement(line)
		if err != nil {
			color.New(color.FgRed).Fprintf(stderr, "Syntax error in: %s\n", line)
			fmt.Fprintf(stderr, "%v\n", err)
			ok = false
			continue
		}
		if err := reportApplyErrors(pol.Apply(stmt)); err != nil {
			return ok, err
		}
	}
	return ok, nil
}

func run(args []string) error {
	opts, err := parseArgs(args)
	if err != nil {
		return err
	}
	if opts.Debug {
		logger.SetDebug(true)
	}
	cfg, err := readConfig(opts.Config)
	if err != nil {
		return err
	}
	if opts.Live && release.SELinuxLevel() == release.NoSELinux {
		return fmt.Errorf("cannot load policy into the running kernel: %s", release.SELinuxSummary())
	}

	statements := opts.Positional.Statements
	for _, path := range opts.Apply {
		lines, err := readStatements(path)
		if err != nil {
			return err
		}
		statements = append(statements, lines...)
	}

	pol, err := loadPolicy(opts, cfg)
	if err != nil {
		return err
	}
	defer pol.Destroy()

	if err := reportApplyErrors(builtinRules(pol, opts, cfg)); err != nil {
		return err
	}
	parsed, err := applyStatements(pol, statements)
	if err != nil {
		return err
	}

	if opts.PrintRules {
		rules, err := pol.Rules()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, strings.Join(rules, "\n"))
	}
	if opts.Save != "" {
		if err := pol.Dump(opts.Save); err != nil {
			return err
		}
	}
	if opts.Live {
		if err := pol.Dump(dirs.SELinuxLoadFile); err != nil {
			return err
		}
	}

	if !parsed {
		fmt.Fprint(stderr, "\n"+statementHelp)
		return errSyntax
	}
	return nil
}

func main() {
	if err := logger.SimpleSetup(); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: failed to activate logging: %v\n", err)
	}
	if err := run(os.Args[1:]); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, ferr.Message)
			fmt.Fprint(stdout, "\n"+statementHelp)
			return
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
