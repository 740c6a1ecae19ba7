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
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"gopkg.in/tomb.v2"
)

// terminator kills the sandbox child when its wall-clock budget runs out.
// It is armed by the limit installer and stopped by the controller once the
// child has been reaped.
//
// Lifecycle: ARMED, then either FIRED (the timer won) or CANCELLED (the
// controller won); either way the tomb reports done when the goroutine has
// finished, which is what stop waits on.
type terminator struct {
	pid    int
	budget time.Duration
	cause  *causeCell

	// reaped is set by the controller after waitpid has returned, so a
	// late timer never signals a pid that may already be recycled.
	reaped atomic.Bool

	// fired is set when the timer expired, whether or not a kill was sent.
	fired atomic.Bool

	tomb tomb.Tomb
}

// armTerminator starts the wall-clock killer for pid.
func armTerminator(pid int, budget time.Duration, cause *causeCell) *terminator {
	t := &terminator{pid: pid, budget: budget, cause: cause}
	t.tomb.Go(t.run)
	return t
}

func (t *terminator) run() error {
	timer := time.NewTimer(t.budget)
	defer timer.Stop()
	select {
	case <-timer.C:
		t.fired.Store(true)
		if t.reaped.Load() {
			return nil
		}
		t.cause.record(CauseWallClock)
		log.Debugf("wall-clock budget expired, killing pid %d", t.pid)
		if err := unix.Kill(t.pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			log.Warnf("killing pid %d on wall-clock expiry: %v", t.pid, err)
		}
		return nil
	case <-t.tomb.Dying():
		return nil
	}
}

// childReaped tells the terminator that the child has been waited on and
// must not be signalled anymore.
func (t *terminator) childReaped() {
	t.reaped.Store(true)
}

// stop cancels the terminator, or, if the timer already fired, waits for
// its cleanup to finish. It only returns once the goroutine is done.
func (t *terminator) stop() {
	t.tomb.Kill(nil)
	if err := t.tomb.Wait(); err != nil {
		log.Warnf("terminator: %v", err)
	}
}
