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

// Package cgroup creates and manages the per-sandbox cgroup v1 controller
// directories used for resource enforcement and accounting.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	log "github.com/sirupsen/logrus"

	"runbox.dev/runbox/pkg/cleanup"
)

const (
	memoryController  = "memory"
	pidsController    = "pids"
	cpuacctController = "cpuacct"
)

// lockPath guards cgroup directory creation and removal against concurrent
// sandbox invocations sharing the same controller locations. It cannot live
// inside cgroupfs, which refuses regular file creation.
var lockPath = filepath.Join(os.TempDir(), "runbox-cgroup.lock")

// Locations names the parent directory for each controller. See
// config.CgroupLocations.
type Locations struct {
	Memory  string
	Pids    string
	Cpuacct string
}

// Cgroup owns the per-pid controller directories of one sandbox child.
type Cgroup struct {
	// dirs maps controller name to the absolute per-pid directory.
	dirs map[string]string
}

// Install creates the controller directories for pid under locs, writes the
// resource caps from res, and moves pid into every controller. The caller
// must call Uninstall once the child has been reaped.
func Install(pid int, locs Locations, res *specs.LinuxResources) (*Cgroup, error) {
	name := strconv.Itoa(pid)
	cg := &Cgroup{
		dirs: map[string]string{
			memoryController:  filepath.Join(locs.Memory, name),
			pidsController:    filepath.Join(locs.Pids, name),
			cpuacctController: filepath.Join(locs.Cpuacct, name),
		},
	}

	c := cleanup.Make(func() {
		if err := cg.Uninstall(); err != nil {
			log.Warnf("cleaning up partially installed cgroups: %v", err)
		}
	})
	defer c.Clean()

	if err := withLock(func() error {
		for _, dir := range cg.dirs {
			if err := os.Mkdir(dir, 0o755); err != nil && !os.IsExist(err) {
				return fmt.Errorf("creating cgroup %q: %w", dir, err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if res.Memory != nil && res.Memory.Limit != nil {
		limit := strconv.FormatInt(*res.Memory.Limit, 10)
		if err := setValue(cg.dirs[memoryController], "memory.limit_in_bytes", limit); err != nil {
			return nil, err
		}
		// Without a matching mem+swap cap the memory limit only pushes the
		// child into swap. Kernels without swap accounting lack the file.
		if err := setValue(cg.dirs[memoryController], "memory.memsw.limit_in_bytes", limit); err != nil {
			log.Debugf("swap cap not applied: %v", err)
		}
	}
	if res.Pids != nil && res.Pids.Limit > 0 {
		if err := setValue(cg.dirs[pidsController], "pids.max", strconv.FormatInt(res.Pids.Limit, 10)); err != nil {
			return nil, err
		}
	}

	// Join last, so the child is never inside a group whose caps are still
	// being written.
	for _, dir := range cg.dirs {
		if err := setValue(dir, "cgroup.procs", name); err != nil {
			return nil, err
		}
	}

	c.Release()
	return cg, nil
}

// Uninstall removes the controller directories. A group can stay busy for a
// short while after its last task was killed, so removal is retried.
func (cg *Cgroup) Uninstall() error {
	return withLock(func() error {
		for _, dir := range cg.dirs {
			b := backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 20)
			remove := func() error {
				if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
					return err
				}
				return nil
			}
			if err := backoff.Retry(remove, b); err != nil {
				return fmt.Errorf("removing cgroup %q: %w", dir, err)
			}
		}
		return nil
	})
}

// MemoryBreached reports whether the memory controller ever refused a
// charge, i.e. the child tried to grow past its cap.
func (cg *Cgroup) MemoryBreached() bool {
	v, err := getValue(cg.dirs[memoryController], "memory.failcnt")
	if err != nil {
		log.Warnf("reading memory.failcnt: %v", err)
		return false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		log.Warnf("parsing memory.failcnt %q: %v", v, err)
		return false
	}
	return n > 0
}

// TasksBreached reports whether the pids controller ever refused a fork or
// clone because the task cap was reached.
func (cg *Cgroup) TasksBreached() bool {
	v, err := getValue(cg.dirs[pidsController], "pids.events")
	if err != nil {
		log.Warnf("reading pids.events: %v", err)
		return false
	}
	// pids.events holds a single "max <count>" line.
	fields := strings.Fields(v)
	if len(fields) != 2 || fields[0] != "max" {
		log.Warnf("unexpected pids.events contents %q", v)
		return false
	}
	n, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		log.Warnf("parsing pids.events %q: %v", v, err)
		return false
	}
	return n > 0
}

// Usage is a post-run resource accounting snapshot.
type Usage struct {
	CPUTime         time.Duration
	PeakMemoryBytes uint64
}

// Usage reads the accounting counters. Valid until Uninstall.
func (cg *Cgroup) Usage() (Usage, error) {
	var u Usage
	v, err := getValue(cg.dirs[cpuacctController], "cpuacct.usage")
	if err != nil {
		return u, err
	}
	ns, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return u, fmt.Errorf("parsing cpuacct.usage %q: %w", v, err)
	}
	u.CPUTime = time.Duration(ns) * time.Nanosecond

	v, err = getValue(cg.dirs[memoryController], "memory.max_usage_in_bytes")
	if err != nil {
		return u, err
	}
	peak, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return u, fmt.Errorf("parsing memory.max_usage_in_bytes %q: %w", v, err)
	}
	u.PeakMemoryBytes = peak
	return u, nil
}

func withLock(fn func() error) error {
	l := flock.New(lockPath)
	if err := l.Lock(); err != nil {
		return fmt.Errorf("locking %q: %w", lockPath, err)
	}
	defer func() {
		if err := l.Unlock(); err != nil {
			log.Warnf("unlocking %q: %v", lockPath, err)
		}
	}()
	return fn()
}

func setValue(dir, name, data string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o700); err != nil {
		return fmt.Errorf("setting %q to %q: %w", path, data, err)
	}
	return nil
}

func getValue(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	out, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %q: %w", path, err)
	}
	return string(out), nil
}
