// File: internal/rpc/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package rpc

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// mailbox is an unbounded MPSC queue. Pushes never block; once the stop
// sentinel has been consumed later pushes are discarded.
type mailbox struct {
	mu      sync.Mutex
	items   *queue.Queue
	signal  chan struct{}
	stopped bool
}

func newMailbox() *mailbox {
	return &mailbox{items: queue.New(), signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(c Command) bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	m.items.Add(c)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// recv blocks until a command is available or ctx ends.
func (m *mailbox) recv(ctx context.Context) (Command, bool) {
	for {
		m.mu.Lock()
		if m.items.Length() > 0 {
			c := m.items.Remove().(Command)
			if c.Kind == KindStop {
				m.stopped = true
			}
			m.mu.Unlock()
			return c, true
		}
		m.mu.Unlock()
		select {
		case <-m.signal:
		case <-ctx.Done():
			return Command{}, false
		}
	}
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Length()
}
