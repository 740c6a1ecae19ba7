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

	"github.com/google/subcommands"

	"runbox.dev/runbox/runbox/cmd/util"
	"runbox.dev/runbox/runbox/config"
	"runbox.dev/runbox/runbox/sandbox"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	jail       string
	input      string
	output     string
	whitelist  string
	configFile string
	uid        int
	gid        int
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run one untrusted program under full confinement"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] <path inside jail> - run one untrusted program and report the outcome.

The path is interpreted after the chroot into the jail, so a program at
<jail>/prog is run as /prog.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.jail, "jail", "", "host directory that becomes the program's filesystem root")
	f.StringVar(&r.input, "input", "", "host file wired to the program's stdin")
	f.StringVar(&r.output, "output", "", "host file wired to the program's stdout, created and truncated")
	f.StringVar(&r.whitelist, "whitelist", "", "syscall whitelist file, one name per line")
	f.StringVar(&r.configFile, "config", "", "TOML file with resource limits and cgroup locations")
	f.IntVar(&r.uid, "uid", 65534, "user id the program runs as, never 0")
	f.IntVar(&r.gid, "gid", 65534, "group id the program runs as, never 0")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	conf := config.Default()
	if r.configFile != "" {
		if err := conf.LoadFile(r.configFile); err != nil {
			util.Fatalf("loading config: %v", err)
		}
	}
	conf.Exec = f.Arg(0)
	conf.Jail = r.jail
	conf.Input = r.input
	conf.Output = r.output
	conf.Whitelist = r.whitelist
	conf.UID = r.uid
	conf.GID = r.gid
	if err := conf.Validate(); err != nil {
		util.Fatalf("invalid configuration: %v", err)
	}

	outcome := sandbox.Run(conf)
	fmt.Println(outcome)
	if outcome == sandbox.OK {
		return subcommands.ExitSuccess
	}
	return subcommands.ExitFailure
}
