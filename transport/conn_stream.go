// File: transport/conn_stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ConnStream adapts a blocking net.Conn to api.Stream by bounding every
// call with a short deadline.

package transport

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/momentics/hioload-amqp/api"
)

// pollSlice bounds how long a single Read or Write may block.
const pollSlice = 500 * time.Microsecond

// ConnStream is a polling api.Stream over net.Conn. It has no pollable
// descriptor, so it pairs with the timer reactor.
type ConnStream struct {
	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

var _ api.Stream = (*ConnStream)(nil)

func NewConnStream(conn net.Conn) *ConnStream {
	return &ConnStream{conn: conn}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *ConnStream) Read(p []byte) (int, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(pollSlice)); err != nil {
		return 0, err
	}
	n, err := s.conn.Read(p)
	if err != nil && isTimeout(err) {
		if n > 0 {
			return n, nil
		}
		return 0, api.ErrWouldBlock
	}
	return n, err
}

func (s *ConnStream) Write(p []byte) (int, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(pollSlice)); err != nil {
		return 0, err
	}
	n, err := s.conn.Write(p)
	if err != nil && isTimeout(err) {
		if n > 0 {
			return n, nil
		}
		return 0, api.ErrWouldBlock
	}
	return n, err
}

func (s *ConnStream) Flush() error         { return nil }
func (s *ConnStream) IsHandshaking() bool  { return false }
func (s *ConnStream) Handshake() error     { return nil }
func (s *ConnStream) RawFD() uintptr       { return 0 }
func (s *ConnStream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *ConnStream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.conn.Close() })
	return s.closeErr
}
