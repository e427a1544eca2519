// File: reactor/socket_state.go
// Author: momentics <momentics@gmail.com>
//
// Readiness flags owned by the I/O loop plus a coalescing event channel
// fed from any goroutine.

package reactor

import (
	"errors"
	"sync/atomic"

	"github.com/momentics/hioload-amqp/api"
)

// Event is a readiness notification bit set.
type Event uint32

const (
	EventReadable Event = 1 << iota
	EventWritable
	EventError
	EventWake
)

// SocketState is read and cleared only by the I/O loop; Send and Wake may
// be called from anywhere.
type SocketState struct {
	readable bool
	writable bool
	errored  bool

	pending atomic.Uint32
	signal  chan struct{}
	reactor atomic.Pointer[reactorRef]
}

type reactorRef struct{ api.Reactor }

// NewSocketState returns a state that assumes the socket is ready both ways
// until a would-block says otherwise.
func NewSocketState() *SocketState {
	return &SocketState{
		readable: true,
		writable: true,
		signal:   make(chan struct{}, 1),
	}
}

// SetReactor installs the reactor used to re-arm readiness.
func (s *SocketState) SetReactor(r api.Reactor) {
	s.reactor.Store(&reactorRef{r})
}

// Send records ev and unblocks Wait. Notifications coalesce.
func (s *SocketState) Send(ev Event) {
	for {
		old := s.pending.Load()
		if s.pending.CompareAndSwap(old, old|uint32(ev)) {
			break
		}
	}
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Wake unblocks the loop without reporting readiness.
func (s *SocketState) Wake() {
	s.Send(EventWake)
}

// PollEvents folds pending notifications into the readiness flags.
func (s *SocketState) PollEvents() {
	ev := Event(s.pending.Swap(0))
	if ev&EventReadable != 0 {
		s.readable = true
	}
	if ev&EventWritable != 0 {
		s.writable = true
	}
	if ev&EventError != 0 {
		s.errored = true
		s.readable = true
		s.writable = true
	}
}

// Wait blocks until any notification arrives.
func (s *SocketState) Wait() {
	<-s.signal
}

// WaitChan exposes the wake signal for callers that also select on other channels.
func (s *SocketState) WaitChan() <-chan struct{} {
	return s.signal
}

func (s *SocketState) Readable() bool { return s.readable }
func (s *SocketState) Writable() bool { return s.writable }

// Errored reports whether the reactor signalled a socket error.
func (s *SocketState) Errored() bool { return s.errored }

// HandleReadResult clears readability and re-arms on would-block; other
// errors are returned untouched.
func (s *SocketState) HandleReadResult(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, api.ErrWouldBlock) {
		s.readable = false
		if r := s.reactor.Load(); r != nil {
			r.PollRead()
		}
		return nil
	}
	return err
}

// HandleWriteResult clears writability and re-arms on would-block; other
// errors are returned untouched.
func (s *SocketState) HandleWriteResult(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, api.ErrWouldBlock) {
		s.writable = false
		if r := s.reactor.Load(); r != nil {
			r.PollWrite()
		}
		return nil
	}
	return err
}
