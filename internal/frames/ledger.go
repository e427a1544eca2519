// File: internal/frames/ledger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package frames

import (
	"github.com/eapache/queue"
	"github.com/momentics/hioload-amqp/internal/promise"
)

type staged struct {
	remaining int
	promise   *promise.Promise
}

// Ledger records one entry per frame staged into the send buffer.
// Invariant: Pending equals the staged, not yet written byte count.
// Owned by the I/O loop; not safe for concurrent use.
type Ledger struct {
	entries *queue.Queue
	pending int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: queue.New()}
}

// Push records n staged bytes for a frame.
func (l *Ledger) Push(n int, p *promise.Promise) {
	l.entries.Add(&staged{remaining: n, promise: p})
	l.pending += n
}

// Written accounts for n bytes accepted by the transport, resolving every
// fully covered entry in order. A partially covered entry stays at the head
// with its remaining length. It returns the bytes not matched by any entry.
func (l *Ledger) Written(n int) (surplus int) {
	for n > 0 {
		if l.entries.Length() == 0 {
			return n
		}
		head := l.entries.Peek().(*staged)
		if n < head.remaining {
			head.remaining -= n
			l.pending -= n
			return 0
		}
		l.entries.Remove()
		n -= head.remaining
		l.pending -= head.remaining
		if head.promise != nil {
			head.promise.Resolve(nil)
		}
	}
	return 0
}

// Pending returns the number of staged bytes not yet written.
func (l *Ledger) Pending() int {
	return l.pending
}

// Len returns the number of tracked frames.
func (l *Ledger) Len() int {
	return l.entries.Length()
}

// Fail resolves every tracked promise with err and empties the ledger.
func (l *Ledger) Fail(err error) {
	for l.entries.Length() > 0 {
		e := l.entries.Remove().(*staged)
		if e.promise != nil {
			e.promise.Resolve(err)
		}
	}
	l.pending = 0
}
