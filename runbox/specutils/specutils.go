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

// Package specutils contains utilities shared by the runbox commands.
package specutils

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/syndtr/gocapability/capability"
)

// ExePath is the path the parent re-executes to create the sandbox child.
// /proc/self/exe always names the running binary, even after it was moved
// or replaced on disk.
var ExePath = "/proc/self/exe"

// RequiredCapabilities is the effective set the supervisor needs:
// CAP_SYS_ADMIN for the new PID namespace, CAP_SYS_CHROOT for the jail,
// and CAP_SETUID/CAP_SETGID for the identity drop.
var RequiredCapabilities = []capability.Cap{
	capability.CAP_SYS_ADMIN,
	capability.CAP_SYS_CHROOT,
	capability.CAP_SETUID,
	capability.CAP_SETGID,
}

// HasCapabilities returns true if the process has all capabilities in cs in
// its effective set.
func HasCapabilities(cs ...capability.Cap) bool {
	caps, err := capability.NewPid2(os.Getpid())
	if err != nil {
		log.Warnf("reading capabilities: %v", err)
		return false
	}
	if err := caps.Load(); err != nil {
		log.Warnf("loading capabilities: %v", err)
		return false
	}
	for _, c := range cs {
		if !caps.Get(capability.EFFECTIVE, c) {
			return false
		}
	}
	return true
}

// MissingCapabilities returns the subset of cs absent from the effective
// set, for reporting.
func MissingCapabilities(cs ...capability.Cap) []capability.Cap {
	var missing []capability.Cap
	for _, c := range cs {
		if !HasCapabilities(c) {
			missing = append(missing, c)
		}
	}
	return missing
}
