// File: internal/concurrency/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "context"

type workerKey struct{}

type workerMark struct {
	owner any
	id    int
}

func withWorker(ctx context.Context, owner any, id int) context.Context {
	return context.WithValue(ctx, workerKey{}, workerMark{owner: owner, id: id})
}

func workerFrom(ctx context.Context) (workerMark, bool) {
	if ctx == nil {
		return workerMark{}, false
	}
	m, ok := ctx.Value(workerKey{}).(workerMark)
	return m, ok
}

// WithinExecutor reports whether ctx belongs to a task running on any
// executor or goroutine handle from this package.
func WithinExecutor(ctx context.Context) bool {
	_, ok := workerFrom(ctx)
	return ok
}
