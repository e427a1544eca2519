// File: reactor/builder.go
// Author: momentics <momentics@gmail.com>
//
// Reactor construction, resolved when the connection is built.

package reactor

import (
	"errors"
	"time"

	"github.com/momentics/hioload-amqp/api"
	"github.com/rs/zerolog"
)

// HeartbeatPoller reports the time left before the next heartbeat deadline,
// injecting a heartbeat when it has passed. Satisfied by *heartbeat.Heartbeat.
type HeartbeatPoller interface {
	PollTimeout() (time.Duration, bool)
}

// Builder creates the reactor watching one stream.
type Builder interface {
	Build(stream api.Stream, hb HeartbeatPoller, state *SocketState) (api.Reactor, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(stream api.Stream, hb HeartbeatPoller, state *SocketState) (api.Reactor, error)

func (f BuilderFunc) Build(stream api.Stream, hb HeartbeatPoller, state *SocketState) (api.Reactor, error) {
	return f(stream, hb, state)
}

// DefaultBuilder uses epoll where available and falls back to the timer
// reactor for streams without a pollable descriptor or on other platforms.
type DefaultBuilder struct {
	Log zerolog.Logger
	// Backoff is the re-arm delay of the timer fallback.
	Backoff time.Duration
}

func (b DefaultBuilder) Build(stream api.Stream, hb HeartbeatPoller, state *SocketState) (api.Reactor, error) {
	if fd := stream.RawFD(); fd != 0 {
		r, err := newEpollReactor(int(fd), hb, state, b.Log)
		if err == nil {
			state.SetReactor(r)
			return r, nil
		}
		if !errors.Is(err, api.ErrNotSupported) {
			return nil, err
		}
	}
	r := NewTimerReactor(hb, state, b.Backoff)
	state.SetReactor(r)
	return r, nil
}
