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

// Binary runbox runs untrusted programs under resource caps, a chroot
// jail, a minimum-privilege identity and a syscall whitelist.
package main

import (
	"runbox.dev/runbox/runbox/cli"
	"runbox.dev/runbox/runbox/version"
)

// version.Version is set during linking, but needs to be referenced here
// so it stays in the binary.
var _ = version.Version()

func main() {
	cli.Main()
}
