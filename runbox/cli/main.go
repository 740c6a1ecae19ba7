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

// Package cli is the main entrypoint for runbox.
package cli

import (
	"context"
	"flag"
	"os"
	"runtime"

	"github.com/google/subcommands"
	log "github.com/sirupsen/logrus"

	"runbox.dev/runbox/runbox/cmd"
	"runbox.dev/runbox/runbox/cmd/util"
	"runbox.dev/runbox/runbox/version"
)

var (
	debug   = flag.Bool("debug", false, "enable debug logging.")
	logFile = flag.String("log", "", "file path to log to, default is stderr.")
)

// Main is the main entrypoint.
func Main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")

	subcommands.Register(new(cmd.Run), "")
	subcommands.Register(new(cmd.Check), "")

	// Internal commands.
	const internalGroup = "internal use only"
	subcommands.Register(new(cmd.Boot), internalGroup)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Diagnostics carry their source location; errno text rides along in
	// the wrapped errors.
	log.SetReportCaller(true)
	log.SetOutput(os.Stderr)
	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			util.Fatalf("opening log file %q: %v", *logFile, err)
		}
		log.SetOutput(f)
		util.ErrorLogger = os.Stderr
	}

	log.Debugf("***************************")
	log.Debugf("Args: %s", os.Args)
	log.Debugf("Version: %s", version.Version())
	log.Debugf("GOOS: %s, GOARCH: %s", runtime.GOOS, runtime.GOARCH)
	log.Debugf("PID: %d, UID: %d, GID: %d", os.Getpid(), os.Getuid(), os.Getgid())
	log.Debugf("***************************")

	os.Exit(int(subcommands.Execute(context.Background())))
}
