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

// Package boot runs the child side of a sandbox: it wires the payload's
// standard streams, performs the startup rendezvous with the parent,
// enters the jail, drops privileges, installs the syscall filter, and
// finally executes the payload.
package boot

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"runbox.dev/runbox/pkg/syncpipe"
	"runbox.dev/runbox/runbox/seccomp"
)

// Payload is the parameter block the parent hands to the child process.
// Nothing in it survives the final exec.
type Payload struct {
	// Exec is the payload path, interpreted after the chroot.
	Exec string

	// Jail is the host path of the directory that becomes the root.
	Jail string

	// Input and Output are host paths wired to fds 0 and 1.
	Input  string
	Output string

	// Whitelist is the host path of the syscall whitelist.
	Whitelist string

	// UID and GID are the identity the payload runs as. Never zero.
	UID int
	GID int

	// ReadyFD and ReleaseFD are the inherited rendezvous descriptors: the
	// child writes its readiness on ReadyFD and blocks on ReleaseFD until
	// the parent has the resource limits in place.
	ReadyFD   int
	ReleaseFD int
}

func (p *Payload) validate() error {
	for _, f := range []struct {
		name string
		path string
	}{
		{"exec", p.Exec},
		{"jail", p.Jail},
		{"input", p.Input},
		{"output", p.Output},
		{"whitelist", p.Whitelist},
	} {
		if f.path == "" {
			return fmt.Errorf("%s path is empty", f.name)
		}
	}
	if p.UID <= 0 {
		return fmt.Errorf("uid %d: refusing to run the payload as root", p.UID)
	}
	if p.GID <= 0 {
		return fmt.Errorf("gid %d: refusing to run the payload as group root", p.GID)
	}
	// 0-2 belong to the payload's stdio.
	if p.ReadyFD < 3 || p.ReleaseFD < 3 {
		return fmt.Errorf("rendezvous fds %d/%d collide with standard streams", p.ReadyFD, p.ReleaseFD)
	}
	return nil
}

// Boot performs the child side of the sandbox handshake. On success it
// never returns: the payload replaces the process image. Every error is a
// setup failure for the caller to report with the sentinel status; cleanup
// of cgroups and channel ends stays with the parent, which observes the
// exit.
func Boot(p *Payload) error {
	if err := p.validate(); err != nil {
		return err
	}

	// Both files are opened while the host view is still visible; the
	// paths mean nothing after the chroot below.
	in, err := os.Open(p.Input)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	out, err := os.OpenFile(p.Output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening output: %w", err)
	}

	if err := unix.Dup2(int(in.Fd()), 0); err != nil {
		return fmt.Errorf("wiring stdin: %w", err)
	}
	if err := unix.Dup2(int(out.Fd()), 1); err != nil {
		return fmt.Errorf("wiring stdout: %w", err)
	}
	in.Close()
	out.Close()

	ready := syncpipe.WriteEndFromFD(p.ReadyFD)
	release := syncpipe.ReadEndFromFD(p.ReleaseFD)

	// Announce readiness, then hold until the parent has the cgroups
	// populated and the wall-clock killer armed. The payload must never
	// run a single instruction before its caps apply.
	if err := ready.Signal(syncpipe.ReadyToken); err != nil {
		return err
	}
	if err := release.Await(syncpipe.ReleaseToken); err != nil {
		return fmt.Errorf("waiting for release: %w", err)
	}
	// The channel must not leak into the payload.
	ready.Close()
	release.Close()

	// The whitelist may live outside the jail, so it too is opened before
	// the chroot.
	wl, err := os.OpenFile(p.Whitelist, os.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("opening whitelist: %w", err)
	}

	if err := unix.Chdir(p.Jail); err != nil {
		return fmt.Errorf("entering jail: %w", err)
	}
	if err := unix.Chroot("."); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}

	// Group first: setgid is off limits once the uid is unprivileged.
	if err := unix.Setgroups([]int{p.GID}); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := unix.Setgid(p.GID); err != nil {
		return fmt.Errorf("setgid: %w", err)
	}
	if err := unix.Setuid(p.UID); err != nil {
		return fmt.Errorf("setuid: %w", err)
	}

	// From here on, any syscall outside the whitelist kills the process.
	if err := seccomp.Install(wl); err != nil {
		return fmt.Errorf("installing syscall filter: %w", err)
	}

	// Success never returns.
	err = unix.Exec(p.Exec, []string{p.Exec}, []string{"PATH=/usr/bin:/bin"})
	return fmt.Errorf("exec %q: %w", p.Exec, err)
}
