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

// Package seccomp compiles a syscall whitelist into a BPF filter and
// installs it on the calling process.
package seccomp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	libseccomp "github.com/seccomp/libseccomp-golang"
	log "github.com/sirupsen/logrus"
)

// Parse reads a whitelist: one syscall name per line, with blank lines and
// #-comments ignored and duplicates collapsed.
func Parse(r io.Reader) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.ContainsAny(line, " \t") {
			return nil, fmt.Errorf("malformed whitelist line %q", line)
		}
		if !seen[line] {
			seen[line] = true
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading whitelist: %w", err)
	}
	return names, nil
}

// Install compiles the whitelist in f and loads the resulting filter on
// every thread of the calling process. From that point on, any syscall
// outside the whitelist kills the process. The file is fully consumed and
// closed.
func Install(f *os.File) error {
	defer f.Close()

	names, err := Parse(f)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("whitelist %q allows no syscalls", f.Name())
	}

	filter, err := libseccomp.NewFilter(libseccomp.ActKillProcess)
	if err != nil {
		return fmt.Errorf("creating seccomp filter: %w", err)
	}
	defer filter.Release()

	if err := filter.SetTsync(true); err != nil {
		return fmt.Errorf("enabling thread sync: %w", err)
	}

	for _, name := range names {
		sc, err := libseccomp.GetSyscallFromName(name)
		if err != nil {
			// Whitelists travel between kernels. A name this kernel does
			// not know cannot be invoked here either, so it is skipped
			// rather than treated as fatal.
			log.Warnf("unknown syscall %q in whitelist, skipping", name)
			continue
		}
		if err := filter.AddRule(sc, libseccomp.ActAllow); err != nil {
			return fmt.Errorf("allowing syscall %q: %w", name, err)
		}
	}

	if err := filter.Load(); err != nil {
		return fmt.Errorf("loading seccomp filter: %w", err)
	}
	return nil
}
