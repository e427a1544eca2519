// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the reactor handle used by the I/O loop to re-arm readiness
// notifications and drive heartbeats.

package api

// Waker unblocks a goroutine waiting on socket readiness.
// Safe to call from any goroutine, including after the waiter is gone.
type Waker interface {
	Wake()
}

// Reactor translates OS-level socket readiness into loop wake-ups.
type Reactor interface {
	// PollRead re-arms read readiness after a would-block read.
	PollRead()

	// PollWrite re-arms write readiness after a would-block write.
	PollWrite()

	// StartHeartbeat starts driving the heartbeat timer.
	StartHeartbeat()

	// Close stops the reactor and releases its resources.
	Close() error
}
