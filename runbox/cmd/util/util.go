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

// Package util groups miscellaneous common helpers for the runbox
// commands.
package util

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// ErrorLogger is where Fatalf writes the error in addition to the log,
// when set.
var ErrorLogger io.Writer

// Fatalf logs a fatal error and kills the process.
func Fatalf(format string, args ...any) {
	log.Errorf(format, args...)
	if ErrorLogger != nil {
		fmt.Fprintf(ErrorLogger, format+"\n", args...)
	}
	// 128 is unlikely to be taken by a sandboxed payload's own exit code.
	os.Exit(128)
}
