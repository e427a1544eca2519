// File: internal/heartbeat/heartbeat.go
// Package heartbeat tracks outbound silence and injects keepalive frames.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package heartbeat

import (
	"sync"
	"time"

	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/internal/promise"
)

// Sender accepts outbound frames. Satisfied by *frames.Frames.
type Sender interface {
	Push(frame protocol.Frame, p *promise.Promise)
}

// Heartbeat is shared between the I/O loop, which records writes, and the
// reactor, which polls for the next deadline.
type Heartbeat struct {
	mu        sync.Mutex
	sender    Sender
	timeout   time.Duration
	lastWrite time.Time
	cancelled bool
	now       func() time.Time
	onSend    func()
}

// New returns a disarmed heartbeat pushing frames into sender.
func New(sender Sender) *Heartbeat {
	return &Heartbeat{sender: sender, now: time.Now, lastWrite: time.Now()}
}

// OnSend registers a hook invoked after each injected heartbeat frame.
func (h *Heartbeat) OnSend(fn func()) {
	h.mu.Lock()
	h.onSend = fn
	h.mu.Unlock()
}

// SetTimeout arms the timer with interval d. Zero disarms it.
func (h *Heartbeat) SetTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.timeout = d
	h.lastWrite = h.now()
}

// Timeout returns the armed interval, zero if disarmed.
func (h *Heartbeat) Timeout() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timeout
}

// UpdateLastWrite resets the silence window after a successful write.
func (h *Heartbeat) UpdateLastWrite() {
	h.mu.Lock()
	h.lastWrite = h.now()
	h.mu.Unlock()
}

// PollTimeout returns the time left until the next deadline. When the
// interval elapsed with no write, a heartbeat frame is pushed and a full
// interval is returned. ok is false while disarmed or cancelled.
func (h *Heartbeat) PollTimeout() (time.Duration, bool) {
	h.mu.Lock()
	if h.cancelled || h.timeout <= 0 {
		h.mu.Unlock()
		return 0, false
	}
	now := h.now()
	left := h.timeout - now.Sub(h.lastWrite)
	if left > 0 {
		h.mu.Unlock()
		return left, true
	}
	h.lastWrite = now
	timeout := h.timeout
	onSend := h.onSend
	h.mu.Unlock()

	h.sender.Push(protocol.Heartbeat(), nil)
	if onSend != nil {
		onSend()
	}
	return timeout, true
}

// Cancel disarms the timer for good.
func (h *Heartbeat) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.timeout = 0
	h.mu.Unlock()
}

// Cancelled reports whether Cancel was called.
func (h *Heartbeat) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}
