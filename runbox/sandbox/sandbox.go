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

// Package sandbox runs one untrusted program under the full confinement
// stack: a fresh PID namespace, a chroot jail, an unprivileged identity, a
// syscall whitelist, and cgroup-enforced resource caps.
//
// The parent and the child process rendezvous twice during startup. The
// child announces readiness once its standard streams are wired, which
// tells the parent the pid is stable enough to take resource limits; the
// parent releases the child once the cgroups are populated and the
// wall-clock killer is armed. Only then does the child confine itself and
// execute the payload. This ordering is load-bearing: a child that entered
// the jail or dropped privileges early could run untrusted code before any
// cap applies.
package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"runbox.dev/runbox/pkg/cleanup"
	"runbox.dev/runbox/pkg/syncpipe"
	"runbox.dev/runbox/runbox/config"
	"runbox.dev/runbox/runbox/specutils"
)

// SetupFailureStatus is the exit status the child uses to report a
// bootstrap error before the payload runs. It sits outside 0-125 so it
// cannot collide with an ordinary exit of a well-behaved payload.
const SetupFailureStatus = 126

// Run executes conf's program under full confinement and classifies how it
// ended. All process and cgroup side effects are keyed by the child's pid;
// nothing outlives the call.
func Run(conf *config.Config) Outcome {
	out, err := run(conf)
	if err != nil {
		log.Errorf("sandbox: %v", err)
		return Failure
	}
	return out
}

func run(conf *config.Config) (Outcome, error) {
	if err := conf.Validate(); err != nil {
		return Failure, err
	}

	// ready carries the child's "limits can be installed now" token;
	// release carries the parent's "enter the jail" token.
	ready, err := syncpipe.New()
	if err != nil {
		return Failure, err
	}
	defer ready.Close()
	release, err := syncpipe.New()
	if err != nil {
		return Failure, err
	}
	defer release.Close()

	cmd := exec.Command(specutils.ExePath,
		"boot",
		"--exec="+conf.Exec,
		"--jail="+conf.Jail,
		"--input="+conf.Input,
		"--output="+conf.Output,
		"--whitelist="+conf.Whitelist,
		"--uid="+strconv.Itoa(conf.UID),
		"--gid="+strconv.Itoa(conf.GID),
		"--ready-fd=3",
		"--release-fd=4",
	)
	// The child writes fd 3 and reads fd 4; ExtraFiles numbering starts
	// at 3.
	cmd.ExtraFiles = []*os.File{ready.WriteEnd(), release.ReadEnd()}
	// A fresh PID namespace. SIGCHLD delivery and reaping stay with
	// os/exec.
	cmd.SysProcAttr = &syscall.SysProcAttr{Cloneflags: unix.CLONE_NEWPID}
	// The payload's stdin and stdout are wired to the input and output
	// files by the child itself; stderr stays on ours so bootstrap
	// diagnostics are not lost.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr
	cmd.Env = []string{}
	// Make the child easy to spot in process listings.
	cmd.Args[0] = "runbox-child"

	if err := cmd.Start(); err != nil {
		return Failure, fmt.Errorf("starting sandbox child: %w", err)
	}
	pid := cmd.Process.Pid
	log.Debugf("sandbox child started, PID: %d", pid)

	// The donated ends must be closed on this side so that a dying child
	// turns into an immediate EOF on the rendezvous read.
	ready.CloseWrite()
	release.CloseRead()

	// From here on the child must be terminated and reaped no matter
	// which setup step fails.
	c := cleanup.Make(func() {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
			log.Warnf("terminating sandbox child %d: %v", pid, err)
		}
		_ = cmd.Wait()
	})
	defer c.Clean()

	if err := ready.Await(syncpipe.ReadyToken); err != nil {
		return Failure, fmt.Errorf("waiting for child setup: %w", err)
	}

	var cause causeCell
	cg, term, err := installLimits(pid, conf, &cause)
	if err != nil {
		return Failure, err
	}

	if err := release.Signal(syncpipe.ReleaseToken); err != nil {
		term.stop()
		c.Clean() // SIGTERM and reap before the groups come down.
		if uerr := cg.Uninstall(); uerr != nil {
			log.Errorf("leaking cgroup directories for pid %d: %v", pid, uerr)
		}
		return Failure, fmt.Errorf("releasing child: %w", err)
	}

	// The rendezvous is over; neither end is needed again. The child
	// closed its copies before entering the jail.
	ready.Close()
	release.Close()

	state, err := wait(cmd)
	if err != nil {
		// The child is unreapable; killing is all that is left.
		term.stop()
		c.Clean()
		if uerr := cg.Uninstall(); uerr != nil {
			log.Errorf("leaking cgroup directories for pid %d: %v", pid, uerr)
		}
		return Failure, err
	}
	c.Release() // the child is gone; nothing left to kill

	// The child is reaped: tell the terminator before stopping it so a
	// concurrent fire cannot signal a recycled pid. If it already fired,
	// stop degenerates to waiting for it to finish.
	term.childReaped()
	term.stop()

	// Consult the controllers before tearing them down. Wall-clock wins
	// races by having recorded first.
	if cg.MemoryBreached() {
		cause.record(CauseMemory)
	} else if cg.TasksBreached() {
		cause.record(CauseTasks)
	}

	if u, uerr := cg.Usage(); uerr == nil {
		log.Infof("sandbox child %d: cpu %v, peak memory %d bytes", pid, u.CPUTime, u.PeakMemoryBytes)
	} else {
		log.Debugf("reading usage for pid %d: %v", pid, uerr)
	}

	if err := cg.Uninstall(); err != nil {
		// Orphaned controller directories keep stale caps pinned on the
		// host. Not an outcome-changing problem, but never a quiet one.
		log.Errorf("leaking cgroup directories for pid %d: %v", pid, err)
	}

	return classify(state, cause.get()), nil
}

// wait reaps the child and returns its wait status. exec.ExitError is the
// normal vehicle for non-zero exits and signals, not a failure.
func wait(cmd *exec.Cmd) (unix.WaitStatus, error) {
	err := cmd.Wait()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return 0, fmt.Errorf("waiting for sandbox child: %w", err)
		}
	}
	ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return 0, fmt.Errorf("unexpected wait status type %T", cmd.ProcessState.Sys())
	}
	return unix.WaitStatus(ws), nil
}
