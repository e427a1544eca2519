// File: internal/status/status.go
// Package status holds the connection state machine shared by all goroutines.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package status

import (
	"sync"

	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/internal/promise"
)

// rank orders states along the monotonic lattice. Closed and Error share
// the top rank and absorb any further transition.
func rank(s api.ConnectionState) int {
	switch s {
	case api.StateInitial:
		return 0
	case api.StateConnecting:
		return 1
	case api.StateConnected:
		return 2
	case api.StateClosing:
		return 3
	default:
		return 4
	}
}

// Status is the shared connection state. Safe for concurrent use.
type Status struct {
	mu      sync.RWMutex
	state   api.ConnectionState
	err     error
	blocked bool
	reason  string
	connect *promise.Promise
}

// New returns a status in the Initial state.
func New() *Status {
	return &Status{state: api.StateInitial, connect: promise.New()}
}

// State returns the current state.
func (s *Status) State() api.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set advances the state. Backward moves and moves out of a terminal state
// are ignored; it reports whether the transition happened.
func (s *Status) Set(state api.ConnectionState) bool {
	if state == api.StateError {
		return s.SetError(api.ErrConnectionClosed)
	}
	s.mu.Lock()
	if s.state.Terminal() || rank(state) <= rank(s.state) {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.mu.Unlock()

	switch state {
	case api.StateConnected:
		s.connect.Resolve(nil)
	case api.StateClosing, api.StateClosed:
		s.connect.Resolve(api.ErrConnectionClosed)
	}
	return true
}

// SetError moves to Error with cause err unless already terminal.
func (s *Status) SetError(err error) bool {
	if err == nil {
		err = api.ErrConnectionClosed
	}
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.state = api.StateError
	s.err = err
	s.mu.Unlock()
	s.connect.Resolve(err)
	return true
}

// Err returns the error cause, nil unless the state is Error.
func (s *Status) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Status) Connecting() bool { return s.State() == api.StateConnecting }
func (s *Status) Connected() bool  { return s.State() == api.StateConnected }
func (s *Status) Closing() bool    { return s.State() == api.StateClosing }
func (s *Status) Closed() bool     { return s.State() == api.StateClosed }
func (s *Status) Errored() bool    { return s.State() == api.StateError }

// Blocked reports whether the broker paused publishing (connection.blocked).
func (s *Status) Blocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocked
}

// BlockedReason returns the reason sent with the last connection.blocked.
func (s *Status) BlockedReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// SetBlocked records a connection.blocked (true) or unblocked (false).
func (s *Status) SetBlocked(blocked bool, reason string) {
	s.mu.Lock()
	s.blocked = blocked
	if blocked {
		s.reason = reason
	} else {
		s.reason = ""
	}
	s.mu.Unlock()
}

// ConnectResolver is resolved when the connection reaches Connected, or
// failed if it closes or errors first.
func (s *Status) ConnectResolver() *promise.Promise {
	return s.connect
}
