// File: internal/frames/frames.go
// Package frames holds encoded-frame bookkeeping between producers and the I/O loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames is the ordered outbound queue: any goroutine may push, only the I/O
// loop pops. Ledger tracks frames staged into the send buffer until the
// bytes actually reach the transport.

package frames

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/internal/promise"
)

// Entry is a frame awaiting serialization with its optional completion promise.
type Entry struct {
	Frame   protocol.Frame
	Promise *promise.Promise
}

func (e Entry) resolve(err error) {
	if e.Promise != nil {
		e.Promise.Resolve(err)
	}
}

// Frames is a multi-producer, single-consumer FIFO of outbound frames.
type Frames struct {
	mu     sync.Mutex
	retry  *Entry
	queue  *queue.Queue
	waker  api.Waker
	closed error
}

// New creates an empty queue. waker is notified on every push; it may be nil.
func New(waker api.Waker) *Frames {
	return &Frames{queue: queue.New(), waker: waker}
}

// Push enqueues frame with an optional promise. It never blocks. Once the
// queue has been dropped the promise fails immediately.
func (f *Frames) Push(frame protocol.Frame, p *promise.Promise) {
	f.PushAll([]protocol.Frame{frame}, p)
}

// PushAll enqueues frames contiguously; p (optional) is attached to the last
// frame, so it resolves once every frame has been written.
func (f *Frames) PushAll(frames []protocol.Frame, p *promise.Promise) {
	if len(frames) == 0 {
		if p != nil {
			p.Resolve(nil)
		}
		return
	}
	f.mu.Lock()
	if f.closed != nil {
		err := f.closed
		f.mu.Unlock()
		if p != nil {
			p.Resolve(err)
		}
		return
	}
	for i, frame := range frames {
		e := &Entry{Frame: frame}
		if i == len(frames)-1 {
			e.Promise = p
		}
		f.queue.Add(e)
	}
	f.mu.Unlock()
	if f.waker != nil {
		f.waker.Wake()
	}
}

// Send enqueues frame and returns a promise resolved once it hits the wire.
func (f *Frames) Send(frame protocol.Frame) *promise.Promise {
	p := promise.New()
	f.Push(frame, p)
	return p
}

// SendAll enqueues frames contiguously and returns a promise resolved once
// the last one hits the wire.
func (f *Frames) SendAll(frames []protocol.Frame) *promise.Promise {
	p := promise.New()
	f.PushAll(frames, p)
	return p
}

// Pop returns the next frame to serialize. While flow is false, content
// frames are withheld and nothing behind them is allowed to overtake them.
func (f *Frames) Pop(flow bool) (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retry != nil {
		if !flow && f.retry.Frame.IsContent() {
			return Entry{}, false
		}
		e := *f.retry
		f.retry = nil
		return e, true
	}
	if f.queue.Length() == 0 {
		return Entry{}, false
	}
	head := f.queue.Peek().(*Entry)
	if !flow && head.Frame.IsContent() {
		return Entry{}, false
	}
	f.queue.Remove()
	return *head, true
}

// Retry puts e back at the head of the queue. Only the consumer calls it,
// right after the Pop that returned e.
func (f *Frames) Retry(e Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed != nil {
		e.resolve(f.closed)
		return
	}
	f.retry = &e
}

// HasPending reports whether any frame awaits serialization.
func (f *Frames) HasPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retry != nil || f.queue.Length() > 0
}

// Ready reports whether Pop(flow) would return a frame.
func (f *Frames) Ready(flow bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retry != nil {
		return flow || !f.retry.Frame.IsContent()
	}
	if f.queue.Length() == 0 {
		return false
	}
	return flow || !f.queue.Peek().(*Entry).Frame.IsContent()
}

// Len returns the number of queued frames.
func (f *Frames) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.queue.Length()
	if f.retry != nil {
		n++
	}
	return n
}

// DropPending fails every queued promise with err and rejects later pushes.
func (f *Frames) DropPending(err error) {
	f.mu.Lock()
	if f.closed == nil {
		f.closed = err
	}
	var dropped []Entry
	if f.retry != nil {
		dropped = append(dropped, *f.retry)
		f.retry = nil
	}
	for f.queue.Length() > 0 {
		dropped = append(dropped, *f.queue.Remove().(*Entry))
	}
	f.mu.Unlock()
	for _, e := range dropped {
		e.resolve(err)
	}
}
