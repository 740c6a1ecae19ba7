// Copyright 2020 The runbox Authors.
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

// Package config holds everything one sandbox invocation needs to know:
// the payload and its jail, the files wired to its standard streams, the
// identity it runs as, the resource caps, and where the cgroup controllers
// live.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Limits caps the resources available to the sandboxed program. All fields
// must be strictly positive.
type Limits struct {
	// MemoryBytes caps the memory charged to the program and everything it
	// spawns. An allocation exactly at the cap is permitted; going past it
	// is not.
	MemoryBytes uint64 `toml:"memory-bytes"`

	// WallClockMS is the wall-clock budget in milliseconds. When it
	// expires the program is killed.
	WallClockMS uint64 `toml:"wall-clock-ms"`

	// MaxTasks caps the number of tasks (processes and threads). Reaching
	// the cap is permitted; exceeding it is not.
	MaxTasks int64 `toml:"max-tasks"`
}

// CgroupLocations names the parent directories under which the per-run
// controller groups are created, one per controller. Each must be an
// absolute path whose parent hierarchy is already mounted.
type CgroupLocations struct {
	Memory  string `toml:"memory"`
	Pids    string `toml:"pids"`
	Cpuacct string `toml:"cpuacct"`
}

// Config collects the parameters of one sandbox invocation.
type Config struct {
	// Exec is the path of the program to run, interpreted after the chroot
	// into the jail (callers pass e.g. "/prog").
	Exec string `toml:"-"`

	// Jail is the host path of the pre-populated directory that becomes
	// the program's filesystem root.
	Jail string `toml:"-"`

	// Input and Output are host paths wired to the program's stdin and
	// stdout. Output is created (mode 0600) and truncated.
	Input  string `toml:"-"`
	Output string `toml:"-"`

	// Whitelist is the host path of the syscall whitelist file.
	Whitelist string `toml:"-"`

	// UID and GID are the identity the program runs as. Never zero: the
	// payload must not execute as root.
	UID int `toml:"-"`
	GID int `toml:"-"`

	Limits  Limits          `toml:"limits"`
	Cgroups CgroupLocations `toml:"cgroups"`
}

// Default returns a Config with the stock limits and controller locations.
// Callers fill in the per-run paths and may overlay a limits file.
func Default() *Config {
	return &Config{
		UID: 65534, // nobody
		GID: 65534, // nogroup
		Limits: Limits{
			MemoryBytes: 64 << 20,
			WallClockMS: 1000,
			MaxTasks:    1,
		},
		Cgroups: CgroupLocations{
			Memory:  "/sys/fs/cgroup/memory/runbox",
			Pids:    "/sys/fs/cgroup/pids/runbox",
			Cpuacct: "/sys/fs/cgroup/cpuacct/runbox",
		},
	}
}

// LoadFile overlays the limits and cgroup locations from a TOML file.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parsing %q: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

// Validate checks every invariant the sandbox relies on.
func (c *Config) Validate() error {
	if c.Exec == "" {
		return fmt.Errorf("exec path is empty")
	}
	if !filepath.IsAbs(c.Exec) {
		return fmt.Errorf("exec path %q must be absolute inside the jail", c.Exec)
	}
	if c.Jail == "" || !filepath.IsAbs(c.Jail) {
		return fmt.Errorf("jail root %q must be an absolute host path", c.Jail)
	}
	if c.Input == "" {
		return fmt.Errorf("input path is empty")
	}
	if c.Output == "" {
		return fmt.Errorf("output path is empty")
	}
	if c.Whitelist == "" {
		return fmt.Errorf("whitelist path is empty")
	}
	if c.UID <= 0 {
		return fmt.Errorf("uid %d: the payload must not run as root", c.UID)
	}
	if c.GID <= 0 {
		return fmt.Errorf("gid %d: the payload must not run as group root", c.GID)
	}
	if c.Limits.MemoryBytes == 0 {
		return fmt.Errorf("memory limit must be positive")
	}
	if c.Limits.WallClockMS == 0 {
		return fmt.Errorf("wall-clock limit must be positive")
	}
	if c.Limits.MaxTasks <= 0 {
		return fmt.Errorf("task limit must be positive")
	}
	for _, loc := range []struct {
		name string
		path string
	}{
		{"memory", c.Cgroups.Memory},
		{"pids", c.Cgroups.Pids},
		{"cpuacct", c.Cgroups.Cpuacct},
	} {
		if loc.path == "" || !filepath.IsAbs(loc.path) {
			return fmt.Errorf("%s cgroup location %q must be an absolute path", loc.name, loc.path)
		}
	}
	return nil
}
