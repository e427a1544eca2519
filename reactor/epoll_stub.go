//go:build !linux
// +build !linux

// File: reactor/epoll_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub for platforms without epoll.

package reactor

import (
	"github.com/momentics/hioload-amqp/api"
	"github.com/rs/zerolog"
)

type epollReactor struct{ api.Reactor }

func newEpollReactor(int, HeartbeatPoller, *SocketState, zerolog.Logger) (*epollReactor, error) {
	return nil, api.ErrNotSupported
}
