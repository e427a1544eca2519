// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// ConnectionState enumerates the lifecycle of a broker connection.
// States only move forward; Closed and Error are terminal.
type ConnectionState int

const (
	StateInitial ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible from s.
func (s ConnectionState) Terminal() bool {
	return s == StateClosed || s == StateError
}
