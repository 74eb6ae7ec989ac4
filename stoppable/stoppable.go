////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable provides a named quit-channel abstraction for the
// long-running goroutines the client starts (the channel read loop, the
// reconnect follower). Stoppables can be nested with Multi so the whole
// client tears down with a single Close.
package stoppable

import "time"

// pollPeriod is the interval between status checks in WaitForStopped.
const pollPeriod = 100 * time.Millisecond

// Stoppable is the interface for stopping a goroutine or a group of them.
type Stoppable interface {
	// Name returns the name given to the Stoppable on construction.
	Name() string

	// GetStatus returns the current status.
	GetStatus() Status

	// IsRunning returns true if the Stoppable has not begun stopping.
	IsRunning() bool

	// Close signals the Stoppable to stop. It does not block until the
	// goroutine has exited; use WaitForStopped for that.
	Close() error
}

// WaitForStopped polls the Stoppable until it reports Stopped or the timeout
// elapses.
func WaitForStopped(s Stoppable, timeout time.Duration) error {
	done := time.NewTimer(timeout)
	defer done.Stop()
	tick := time.NewTicker(pollPeriod)
	defer tick.Stop()

	for {
		if s.GetStatus() == Stopped {
			return nil
		}
		select {
		case <-done.C:
			return errTimeout(s.Name(), timeout)
		case <-tick.C:
		}
	}
}
