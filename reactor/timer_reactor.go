// File: reactor/timer_reactor.go
// Author: momentics <momentics@gmail.com>
//
// Portable reactor for streams that expose no pollable descriptor: a
// would-block is retried after a short backoff.

package reactor

import (
	"sync"
	"time"
)

const defaultBackoff = time.Millisecond

// TimerReactor re-arms readiness by timer.
type TimerReactor struct {
	state   *SocketState
	driver  *HeartbeatDriver
	backoff time.Duration

	mu     sync.Mutex
	read   *time.Timer
	write  *time.Timer
	closed bool
}

// NewTimerReactor returns a timer-driven reactor; backoff <= 0 uses 1ms.
func NewTimerReactor(hb HeartbeatPoller, state *SocketState, backoff time.Duration) *TimerReactor {
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &TimerReactor{state: state, driver: NewHeartbeatDriver(hb), backoff: backoff}
}

func (r *TimerReactor) PollRead()  { r.arm(&r.read, EventReadable) }
func (r *TimerReactor) PollWrite() { r.arm(&r.write, EventWritable) }

func (r *TimerReactor) arm(slot **time.Timer, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if *slot == nil {
		*slot = time.AfterFunc(r.backoff, func() { r.state.Send(ev) })
		return
	}
	(*slot).Reset(r.backoff)
}

func (r *TimerReactor) StartHeartbeat() {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if !closed {
		r.driver.Start()
	}
}

func (r *TimerReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, t := range []*time.Timer{r.read, r.write} {
		if t != nil {
			t.Stop()
		}
	}
	r.mu.Unlock()
	r.driver.Stop()
	return nil
}
