//go:build linux
// +build linux

// File: transport/tcp_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux TCP stream over a raw non-blocking descriptor.

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/momentics/hioload-amqp/api"
	"golang.org/x/sys/unix"
)

// TCPStream reads and writes a non-blocking socket descriptor directly,
// leaving readiness to the epoll reactor.
type TCPStream struct {
	fd        int
	remote    net.Addr
	closeOnce sync.Once
	closeErr  error
}

var _ api.Stream = (*TCPStream)(nil)

// Dial connects to addr and detaches the socket from the Go netpoller.
func Dial(ctx context.Context, addr string) (api.Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	tcp := conn.(*net.TCPConn)
	_ = tcp.SetNoDelay(true)
	s, err := FromTCPConn(tcp)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FromTCPConn duplicates conn's descriptor in non-blocking mode and closes conn.
func FromTCPConn(conn *net.TCPConn) (*TCPStream, error) {
	defer conn.Close()
	f, err := conn.File()
	if err != nil {
		return nil, fmt.Errorf("detach socket: %w", err)
	}
	defer f.Close()
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, fmt.Errorf("dup socket: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	return &TCPStream{fd: fd, remote: conn.RemoteAddr()}, nil
}

// NewTCPStream wraps an already connected non-blocking descriptor.
func NewTCPStream(fd int, remote net.Addr) *TCPStream {
	return &TCPStream{fd: fd, remote: remote}
}

func (s *TCPStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, api.ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("read: %w", err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (s *TCPStream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Write(s.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, api.ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("write: %w", err)
		}
		return n, nil
	}
}

func (s *TCPStream) Flush() error         { return nil }
func (s *TCPStream) IsHandshaking() bool  { return false }
func (s *TCPStream) Handshake() error     { return nil }
func (s *TCPStream) RawFD() uintptr       { return uintptr(s.fd) }
func (s *TCPStream) RemoteAddr() net.Addr { return s.remote }

func (s *TCPStream) Close() error {
	s.closeOnce.Do(func() {
		_ = unix.Shutdown(s.fd, unix.SHUT_RDWR)
		s.closeErr = unix.Close(s.fd)
	})
	return s.closeErr
}
