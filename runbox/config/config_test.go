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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// valid returns a Config that passes Validate, for tests to break one field
// at a time.
func valid() *Config {
	c := Default()
	c.Exec = "/prog"
	c.Jail = "/srv/jail"
	c.Input = "/tmp/in"
	c.Output = "/tmp/out"
	c.Whitelist = "/etc/runbox/whitelist"
	return c
}

func TestValidateAccepts(t *testing.T) {
	require.NoError(t, valid().Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		mutate func(*Config)
	}{
		{"empty exec", func(c *Config) { c.Exec = "" }},
		{"relative exec", func(c *Config) { c.Exec = "prog" }},
		{"empty jail", func(c *Config) { c.Jail = "" }},
		{"relative jail", func(c *Config) { c.Jail = "jail" }},
		{"empty input", func(c *Config) { c.Input = "" }},
		{"empty output", func(c *Config) { c.Output = "" }},
		{"empty whitelist", func(c *Config) { c.Whitelist = "" }},
		{"root uid", func(c *Config) { c.UID = 0 }},
		{"negative uid", func(c *Config) { c.UID = -1 }},
		{"root gid", func(c *Config) { c.GID = 0 }},
		{"zero memory", func(c *Config) { c.Limits.MemoryBytes = 0 }},
		{"zero wall clock", func(c *Config) { c.Limits.WallClockMS = 0 }},
		{"zero tasks", func(c *Config) { c.Limits.MaxTasks = 0 }},
		{"negative tasks", func(c *Config) { c.Limits.MaxTasks = -4 }},
		{"empty memory location", func(c *Config) { c.Cgroups.Memory = "" }},
		{"relative pids location", func(c *Config) { c.Cgroups.Pids = "pids" }},
		{"empty cpuacct location", func(c *Config) { c.Cgroups.Cpuacct = "" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := valid()
			test.mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[limits]
memory-bytes = 16777216
wall-clock-ms = 200
max-tasks = 2

[cgroups]
memory = "/sys/fs/cgroup/memory/judge"
pids = "/sys/fs/cgroup/pids/judge"
cpuacct = "/sys/fs/cgroup/cpuacct/judge"
`), 0o644))

	c := Default()
	require.NoError(t, c.LoadFile(path))
	require.Equal(t, uint64(16777216), c.Limits.MemoryBytes)
	require.Equal(t, uint64(200), c.Limits.WallClockMS)
	require.Equal(t, int64(2), c.Limits.MaxTasks)
	require.Equal(t, "/sys/fs/cgroup/memory/judge", c.Cgroups.Memory)
	require.Equal(t, "/sys/fs/cgroup/pids/judge", c.Cgroups.Pids)
	require.Equal(t, "/sys/fs/cgroup/cpuacct/judge", c.Cgroups.Cpuacct)
}

func TestLoadFilePartialOverlayKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[limits]
wall-clock-ms = 5000
`), 0o644))

	c := Default()
	require.NoError(t, c.LoadFile(path))
	require.Equal(t, uint64(5000), c.Limits.WallClockMS)
	require.Equal(t, uint64(64<<20), c.Limits.MemoryBytes)
	require.Equal(t, "/sys/fs/cgroup/memory/runbox", c.Cgroups.Memory)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[limits]
memory-megabytes = 64
`), 0o644))

	require.Error(t, Default().LoadFile(path))
}

func TestLoadFileMissing(t *testing.T) {
	require.Error(t, Default().LoadFile(filepath.Join(t.TempDir(), "absent.toml")))
}
