package check

import (
	"fmt"
	"runtime"
)

// RunInThread runs the check on a dedicated OS thread and blocks until it
// finishes, re-surfacing any failure on the calling goroutine.
//
// cgrulesengd honors "cgexec --sticky" only for processes spawned by a
// program's main thread; children spawned from other threads are fair game
// for relocation. Running the whole check on a separate thread makes it
// representative of that second context.
func RunInThread(c *Checker) (Outcome, error) {
	type result struct {
		outcome Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("cgroup check worker: %v", r)}
			}
		}()
		// Pin to a thread of our own so the spawn truly happens off the main
		// thread. The thread is discarded when the goroutine exits.
		runtime.LockOSThread()
		outcome, err := c.Run()
		done <- result{outcome: outcome, err: err}
	}()
	r := <-done
	return r.outcome, r.err
}
