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
	"os"

	"github.com/google/subcommands"
	log "github.com/sirupsen/logrus"

	"runbox.dev/runbox/runbox/boot"
	"runbox.dev/runbox/runbox/sandbox"
)

// Boot implements subcommands.Command for the internal "boot" command. It
// is re-executed by the parent controller inside the new PID namespace and
// never invoked by users.
type Boot struct {
	payload boot.Payload
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "launch a sandbox child process (internal)"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - launch a sandbox child process (internal)
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.payload.Exec, "exec", "", "payload path, interpreted after chroot")
	f.StringVar(&b.payload.Jail, "jail", "", "host path of the jail root")
	f.StringVar(&b.payload.Input, "input", "", "host file wired to the payload's stdin")
	f.StringVar(&b.payload.Output, "output", "", "host file wired to the payload's stdout")
	f.StringVar(&b.payload.Whitelist, "whitelist", "", "host path of the syscall whitelist")
	f.IntVar(&b.payload.UID, "uid", 0, "user id the payload runs as")
	f.IntVar(&b.payload.GID, "gid", 0, "group id the payload runs as")
	f.IntVar(&b.payload.ReadyFD, "ready-fd", -1, "inherited fd the readiness token is written to")
	f.IntVar(&b.payload.ReleaseFD, "release-fd", -1, "inherited fd the release token is read from")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	// Boot only returns on error; success ends in the payload's exec. The
	// sentinel status tells the parent this was a bootstrap failure, not
	// the payload's own exit.
	err := boot.Boot(&b.payload)
	log.Errorf("sandbox setup: %v", err)
	os.Exit(sandbox.SetupFailureStatus)
	panic("unreachable")
}
