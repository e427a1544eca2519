// File: fake/reactor.go
// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/reactor"
)

// Reactor is an api.Reactor bound to a fake Stream. Re-arming reports
// readiness at once when the stream already has it, otherwise the next
// Feed or unblock does.
type Reactor struct {
	stream *Stream
	state  *reactor.SocketState
	driver *reactor.HeartbeatDriver

	readRearms  atomic.Int32
	writeRearms atomic.Int32
	heartbeats  atomic.Bool
	closeOnce   sync.Once
	closed      atomic.Bool
}

// Builder returns a reactor.Builder producing Reactors for fake streams.
// The last built reactor is stored in *out when out is non-nil.
func Builder(out **Reactor) reactor.Builder {
	return reactor.BuilderFunc(func(stream api.Stream, hb reactor.HeartbeatPoller, state *reactor.SocketState) (api.Reactor, error) {
		s, ok := stream.(*Stream)
		if !ok {
			return nil, api.ErrNotSupported
		}
		r := &Reactor{stream: s, state: state, driver: reactor.NewHeartbeatDriver(hb)}
		s.setNotify(func(readable, writable bool) {
			var ev reactor.Event
			if readable {
				ev |= reactor.EventReadable
			}
			if writable {
				ev |= reactor.EventWritable
			}
			state.Send(ev)
		})
		state.SetReactor(r)
		if out != nil {
			*out = r
		}
		return r, nil
	})
}

func (r *Reactor) PollRead() {
	r.readRearms.Add(1)
	if r.stream.hasInbound() {
		r.state.Send(reactor.EventReadable)
	}
}

func (r *Reactor) PollWrite() {
	r.writeRearms.Add(1)
	if r.stream.writable() {
		r.state.Send(reactor.EventWritable)
	}
}

func (r *Reactor) StartHeartbeat() {
	r.heartbeats.Store(true)
	r.driver.Start()
}

func (r *Reactor) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.driver.Stop()
	})
	return nil
}

// ReadRearms returns how many times PollRead was called.
func (r *Reactor) ReadRearms() int { return int(r.readRearms.Load()) }

// WriteRearms returns how many times PollWrite was called.
func (r *Reactor) WriteRearms() int { return int(r.writeRearms.Load()) }

// HeartbeatStarted reports whether StartHeartbeat was called.
func (r *Reactor) HeartbeatStarted() bool { return r.heartbeats.Load() }

// Closed reports whether Close was called.
func (r *Reactor) Closed() bool { return r.closed.Load() }
