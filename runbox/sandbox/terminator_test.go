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
	"time"

	"github.com/stretchr/testify/require"
)

// ghostPid is far above any real pid_max, so a fired terminator's SIGKILL
// lands on ESRCH instead of a live process.
const ghostPid = 1 << 30

func TestTerminatorFires(t *testing.T) {
	var cell causeCell
	term := armTerminator(ghostPid, time.Millisecond, &cell)

	require.Eventually(t, func() bool { return term.fired.Load() },
		time.Second, time.Millisecond)
	require.Equal(t, CauseWallClock, cell.get())

	// stop after a fire degenerates to waiting for the goroutine.
	term.stop()
}

func TestTerminatorCancelled(t *testing.T) {
	var cell causeCell
	term := armTerminator(ghostPid, time.Hour, &cell)
	term.stop()

	require.False(t, term.fired.Load())
	require.Equal(t, CauseNone, cell.get())
}

func TestTerminatorHoldsFireAfterReap(t *testing.T) {
	var cell causeCell
	term := armTerminator(ghostPid, 10*time.Millisecond, &cell)
	term.childReaped()

	// Let the timer win, then check the fire was held.
	require.Eventually(t, func() bool { return term.fired.Load() },
		time.Second, time.Millisecond)
	require.Equal(t, CauseNone, cell.get())
	term.stop()
}
