// Package promise provides one-shot completion signals.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Promise is resolved exactly once, successfully or with an error, by the
// goroutine that completes the action; any number of goroutines may wait.

package promise

import (
	"context"
	"sync"
)

// Promise is a one-shot completion signal.
type Promise struct {
	once sync.Once
	done chan struct{}
	err  error
}

// New returns an unresolved promise.
func New() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve completes the promise with err (nil for success). Only the first
// call has an effect; it reports whether this call resolved the promise.
func (p *Promise) Resolve(err error) bool {
	resolved := false
	p.once.Do(func() {
		p.err = err
		close(p.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the promise is resolved.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Resolved reports whether Resolve has been called.
func (p *Promise) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the resolution error. Valid only after Done is closed.
func (p *Promise) Err() error {
	<-p.done
	return p.err
}

// Wait blocks until the promise resolves or ctx ends.
func (p *Promise) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
