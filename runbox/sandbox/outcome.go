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

import "golang.org/x/sys/unix"

// Outcome is the classified result of one sandbox invocation.
type Outcome int

const (
	// OK means the program ran to a normal exit within every limit.
	OK Outcome = iota

	// RuntimeError means the program died to a signal with no limit
	// breached, including the kill delivered by the syscall filter.
	RuntimeError

	// MemoryExceeded means the program tried to grow past its memory cap.
	MemoryExceeded

	// TimeExceeded means the wall-clock budget expired.
	TimeExceeded

	// TaskExceeded means the program tried to spawn past its task cap.
	TaskExceeded

	// Failure means the sandbox itself could not be set up, the child could
	// not be reaped, or the child reported a bootstrap error. Teardown
	// failures after the reap are logged and do not change the outcome.
	Failure
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case RuntimeError:
		return "runtime-error"
	case MemoryExceeded:
		return "memory-exceeded"
	case TimeExceeded:
		return "time-exceeded"
	case TaskExceeded:
		return "task-exceeded"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// classify turns the child's wait status and the recorded breach cause into
// the final outcome. The setup-failure sentinel wins over everything: a
// child that never reached its exec has nothing meaningful to account.
func classify(ws unix.WaitStatus, cause Cause) Outcome {
	if ws.Exited() && ws.ExitStatus() == SetupFailureStatus {
		return Failure
	}
	switch cause {
	case CauseNone:
		switch {
		case ws.Signaled():
			return RuntimeError
		case ws.Exited():
			return OK
		default:
			// waitpid without WUNTRACED reports nothing but exits and
			// signals; anything else means the wait went wrong.
			return Failure
		}
	case CauseMemory:
		return MemoryExceeded
	case CauseWallClock:
		return TimeExceeded
	case CauseTasks:
		return TaskExceeded
	default:
		// CauseFatal, or a value that should not exist.
		return Failure
	}
}
