// File: fake/stream.go
// Author: momentics <momentics@gmail.com>

package fake

import (
	"net"
	"sync"

	"github.com/momentics/hioload-amqp/api"
)

// Stream is a scripted api.Stream. Inbound bytes are fed by the test or a
// peer hook; writes are recorded call by call.
type Stream struct {
	mu         sync.Mutex
	inbound    []byte
	written    []byte
	writes     []int
	writeChunk int
	readErr    error
	writeErr   error
	blocked    bool
	budget     int
	zeroReads  int
	handshakes int
	closed     bool
	onWrite    func(p []byte)
	notify     func(readable, writable bool)
}

var _ api.Stream = (*Stream)(nil)

// NewStream creates an empty stream accepting unlimited writes.
func NewStream() *Stream {
	return &Stream{budget: -1}
}

// SetWriteChunk caps the bytes accepted by a single Write; 0 removes the cap.
func (s *Stream) SetWriteChunk(n int) {
	s.mu.Lock()
	s.writeChunk = n
	s.mu.Unlock()
}

// SetHandshakeSteps makes Handshake report would-block n times.
func (s *Stream) SetHandshakeSteps(n int) {
	s.mu.Lock()
	s.handshakes = n
	s.mu.Unlock()
}

// OnWrite installs a hook receiving a copy of every accepted write.
func (s *Stream) OnWrite(fn func(p []byte)) {
	s.mu.Lock()
	s.onWrite = fn
	s.mu.Unlock()
}

func (s *Stream) setNotify(fn func(readable, writable bool)) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// Feed queues bytes for Read and signals readability.
func (s *Stream) Feed(p []byte) {
	s.mu.Lock()
	s.inbound = append(s.inbound, p...)
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify(true, false)
	}
}

// ZeroReads makes the next n reads return (0, nil).
func (s *Stream) ZeroReads(n int) {
	s.mu.Lock()
	s.zeroReads = n
	s.mu.Unlock()
}

// FailReads makes every later Read return err.
func (s *Stream) FailReads(err error) {
	s.mu.Lock()
	s.readErr = err
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify(true, false)
	}
}

// FailWrites makes every later Write return err.
func (s *Stream) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// BlockWrites toggles would-block on Write. Unblocking signals writability.
func (s *Stream) BlockWrites(blocked bool) {
	s.mu.Lock()
	s.blocked = blocked
	s.budget = -1
	notify := s.notify
	s.mu.Unlock()
	if !blocked && notify != nil {
		notify(false, true)
	}
}

// AllowWrites unblocks the stream for n more Write calls, after which it
// reports would-block again.
func (s *Stream) AllowWrites(n int) {
	s.mu.Lock()
	s.blocked = false
	s.budget = n
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify(false, true)
	}
}

// Written returns a copy of every byte accepted so far.
func (s *Stream) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written...)
}

// Writes returns the size of each accepted Write call.
func (s *Stream) Writes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.writes...)
}

// Pending returns the number of inbound bytes not yet read.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inbound)
}

func (s *Stream) hasInbound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inbound) > 0 || s.readErr != nil
}

func (s *Stream) writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.blocked && s.budget != 0
}

func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return 0, api.ErrTransportClosed
	case s.readErr != nil:
		return 0, s.readErr
	case s.zeroReads > 0:
		s.zeroReads--
		return 0, nil
	case len(s.inbound) == 0:
		return 0, api.ErrWouldBlock
	}
	n := copy(p, s.inbound)
	s.inbound = s.inbound[n:]
	return n, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return 0, api.ErrTransportClosed
	case s.writeErr != nil:
		err := s.writeErr
		s.mu.Unlock()
		return 0, err
	case s.blocked || s.budget == 0:
		s.mu.Unlock()
		return 0, api.ErrWouldBlock
	}
	if s.budget > 0 {
		s.budget--
	}
	n := len(p)
	if s.writeChunk > 0 && n > s.writeChunk {
		n = s.writeChunk
	}
	s.written = append(s.written, p[:n]...)
	s.writes = append(s.writes, n)
	hook := s.onWrite
	s.mu.Unlock()
	if hook != nil {
		hook(append([]byte(nil), p[:n]...))
	}
	return n, nil
}

func (s *Stream) Flush() error { return nil }

func (s *Stream) IsHandshaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakes > 0
}

func (s *Stream) Handshake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handshakes > 0 {
		s.handshakes--
		if s.handshakes > 0 {
			return api.ErrWouldBlock
		}
	}
	return nil
}

func (s *Stream) RawFD() uintptr { return 0 }

func (s *Stream) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5672}
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
