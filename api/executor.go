// Package api
// Author: momentics
//
// Executor contract for running work off the I/O goroutine.

package api

import "context"

// TaskFunc is a unit of work. The context identifies the worker running it,
// which lets shutdown paths detect re-entrant calls.
type TaskFunc func(ctx context.Context)

// Executor abstracts asynchronous task execution.
type Executor interface {
	// Submit schedules task for execution and returns immediately.
	// A failed submission is reported, never panics the caller.
	Submit(task TaskFunc) error
}
