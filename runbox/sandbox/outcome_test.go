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
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// exited builds the wait status of a process that exited with code.
func exited(code int) unix.WaitStatus {
	return unix.WaitStatus(code << 8)
}

// signaled builds the wait status of a process killed by sig.
func signaled(sig unix.Signal) unix.WaitStatus {
	return unix.WaitStatus(sig)
}

func TestWaitStatusHelpers(t *testing.T) {
	// The classification below leans on the kernel's encoding; make sure
	// the helpers build it faithfully.
	ws := exited(3)
	require.True(t, ws.Exited())
	require.Equal(t, 3, ws.ExitStatus())

	ws = signaled(unix.SIGKILL)
	require.True(t, ws.Signaled())
	require.Equal(t, unix.SIGKILL, ws.Signal())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		ws    unix.WaitStatus
		cause Cause
		want  Outcome
	}{
		{"clean exit", exited(0), CauseNone, OK},
		{"nonzero exit", exited(7), CauseNone, OK},
		{"signaled", signaled(unix.SIGSEGV), CauseNone, RuntimeError},
		{"filter kill", signaled(unix.SIGSYS), CauseNone, RuntimeError},
		{"setup failure", exited(SetupFailureStatus), CauseNone, Failure},
		{"setup failure beats cause", exited(SetupFailureStatus), CauseWallClock, Failure},
		{"oom kill", signaled(unix.SIGKILL), CauseMemory, MemoryExceeded},
		{"wall clock", signaled(unix.SIGKILL), CauseWallClock, TimeExceeded},
		{"task cap after exit", exited(1), CauseTasks, TaskExceeded},
		{"task cap after signal", signaled(unix.SIGKILL), CauseTasks, TaskExceeded},
		{"installer fatality", exited(0), CauseFatal, Failure},
		{"bogus cause", exited(0), Cause(99), Failure},
		{"neither exited nor signaled", unix.WaitStatus(0x7f), CauseNone, Failure},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, classify(test.ws, test.cause))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "ok", OK.String())
	require.Equal(t, "runtime-error", RuntimeError.String())
	require.Equal(t, "memory-exceeded", MemoryExceeded.String())
	require.Equal(t, "time-exceeded", TimeExceeded.String())
	require.Equal(t, "task-exceeded", TaskExceeded.String())
	require.Equal(t, "failure", Failure.String())
}
