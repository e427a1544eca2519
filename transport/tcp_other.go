//go:build !linux
// +build !linux

// File: transport/tcp_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/momentics/hioload-amqp/api"
)

// Dial connects to addr and wraps the connection in a polling ConnStream.
func Dial(ctx context.Context, addr string) (api.Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return NewConnStream(conn), nil
}
