// File: internal/concurrency/thread.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"context"
	"sync"
)

// ThreadHandle owns one dedicated goroutine and its join capability.
// The zero value holds nothing.
type ThreadHandle struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
}

// Spawn starts fn on a new goroutine owned by h. fn's context is marked so
// IsCurrent can recognise it. It returns false if h already owns one.
func (h *ThreadHandle) Spawn(fn func(ctx context.Context) error) bool {
	h.mu.Lock()
	if h.done != nil {
		h.mu.Unlock()
		return false
	}
	done := make(chan struct{})
	h.done = done
	h.mu.Unlock()

	ctx := withWorker(context.Background(), h, 0)
	go func() {
		err := fn(ctx)
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(done)
	}()
	return true
}

// IsCurrent reports whether ctx belongs to the goroutine owned by h.
func (h *ThreadHandle) IsCurrent(ctx context.Context) bool {
	m, ok := workerFrom(ctx)
	return ok && m.owner == h
}

// Wait joins the goroutine and returns its error. From inside that goroutine
// it returns immediately with nil, and with nothing spawned it is a no-op.
func (h *ThreadHandle) Wait(ctx context.Context) error {
	if h.IsCurrent(ctx) {
		return nil
	}
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed once the goroutine exits; nil if nothing was spawned.
func (h *ThreadHandle) Done() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}
