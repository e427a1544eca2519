// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the raw duplex byte stream consumed by the I/O loop.

package api

import "net"

// Stream abstracts a full-duplex, non-blocking connection to the broker.
// Plain TCP and secured transports are resolved to a concrete Stream when
// the connection is constructed.
type Stream interface {
	// Read reads into p. It returns ErrWouldBlock when no data is available.
	Read(p []byte) (n int, err error)

	// Write writes p. It returns ErrWouldBlock when the socket cannot accept data.
	Write(p []byte) (n int, err error)

	// Flush pushes any bytes buffered by the transport itself.
	Flush() error

	// IsHandshaking reports whether a transport-level handshake is still in progress.
	IsHandshaking() bool

	// Handshake advances the transport handshake. It may return ErrWouldBlock.
	Handshake() error

	// RawFD returns the underlying OS-level file descriptor.
	RawFD() uintptr

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	// Close shuts down the stream.
	Close() error
}
