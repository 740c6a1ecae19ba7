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

package sandbox

import (
	"fmt"
	"sync/atomic"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"runbox.dev/runbox/runbox/cgroup"
	"runbox.dev/runbox/runbox/config"
)

// Cause records why the sandboxed program was cut short, or CauseNone.
type Cause int32

const (
	// CauseNone: no limit was breached.
	CauseNone Cause = iota

	// CauseFatal: the limit machinery itself failed.
	CauseFatal

	// CauseMemory: the memory cap was breached.
	CauseMemory

	// CauseWallClock: the wall-clock budget expired.
	CauseWallClock

	// CauseTasks: the task cap was breached.
	CauseTasks
)

// String implements fmt.Stringer.
func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseFatal:
		return "fatal"
	case CauseMemory:
		return "memory"
	case CauseWallClock:
		return "wall-clock"
	case CauseTasks:
		return "tasks"
	default:
		return "unknown"
	}
}

// causeCell holds the breach cause. It is written at most once, by
// whichever party observes a breach first, and read by the controller only
// after the child has been reaped.
type causeCell struct {
	v atomic.Int32
}

// record stores cause if the cell is still CauseNone and reports whether it
// won the race.
func (c *causeCell) record(cause Cause) bool {
	return c.v.CompareAndSwap(int32(CauseNone), int32(cause))
}

func (c *causeCell) get() Cause {
	return Cause(c.v.Load())
}

// installLimits places pid under the configured controllers with the
// configured caps and arms the wall-clock terminator. On success the caller
// owns both returned values: the cgroups must be uninstalled after the
// child is reaped, and the terminator must be stopped.
func installLimits(pid int, conf *config.Config, cause *causeCell) (*cgroup.Cgroup, *terminator, error) {
	memory := int64(conf.Limits.MemoryBytes)
	res := &specs.LinuxResources{
		Memory: &specs.LinuxMemory{Limit: &memory},
		Pids:   &specs.LinuxPids{Limit: conf.Limits.MaxTasks},
	}
	locs := cgroup.Locations{
		Memory:  conf.Cgroups.Memory,
		Pids:    conf.Cgroups.Pids,
		Cpuacct: conf.Cgroups.Cpuacct,
	}
	cg, err := cgroup.Install(pid, locs, res)
	if err != nil {
		cause.record(CauseFatal)
		return nil, nil, fmt.Errorf("installing resource limits: %w", err)
	}
	term := armTerminator(pid, time.Duration(conf.Limits.WallClockMS)*time.Millisecond, cause)
	return cg, term, nil
}
