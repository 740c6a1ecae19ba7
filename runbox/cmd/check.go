// Copyright 2021 The runbox Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"runbox.dev/runbox/runbox/cmd/util"
	"runbox.dev/runbox/runbox/config"
	"runbox.dev/runbox/runbox/specutils"
)

// Check implements subcommands.Command for the "check" command, a
// preflight that verifies the host can actually run sandboxes: effective
// capabilities, plus existence and writability of the cgroup locations.
type Check struct {
	configFile string
}

// Name implements subcommands.Command.Name.
func (*Check) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Check) Synopsis() string {
	return "verify that this host can run sandboxes"
}

// Usage implements subcommands.Command.Usage.
func (*Check) Usage() string {
	return `check [flags] - verify capabilities and cgroup locations.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Check) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configFile, "config", "", "TOML file with resource limits and cgroup locations")
}

// Execute implements subcommands.Command.Execute.
func (c *Check) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	conf := config.Default()
	if c.configFile != "" {
		if err := conf.LoadFile(c.configFile); err != nil {
			util.Fatalf("loading config: %v", err)
		}
	}

	ok := true
	if missing := specutils.MissingCapabilities(specutils.RequiredCapabilities...); len(missing) > 0 {
		for _, m := range missing {
			fmt.Printf("missing capability: cap_%s\n", m)
		}
		ok = false
	}

	for _, loc := range []struct {
		name string
		path string
	}{
		{"memory", conf.Cgroups.Memory},
		{"pids", conf.Cgroups.Pids},
		{"cpuacct", conf.Cgroups.Cpuacct},
	} {
		if err := probeLocation(loc.path); err != nil {
			fmt.Printf("%s cgroup location: %v\n", loc.name, err)
			ok = false
		}
	}

	if !ok {
		return subcommands.ExitFailure
	}
	fmt.Println("ok")
	return subcommands.ExitSuccess
}

// probeLocation verifies that path is a directory this process can create
// per-pid groups in, by creating and removing one.
func probeLocation(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%q is not a directory", path)
	}
	probe := filepath.Join(path, fmt.Sprintf("check-%d", os.Getpid()))
	if err := os.Mkdir(probe, 0o755); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("removing probe group: %w", err)
	}
	return nil
}
