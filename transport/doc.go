// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package transport provides non-blocking byte streams to the broker:
// a raw-descriptor TCP stream on Linux and a deadline-driven wrapper for
// any net.Conn elsewhere.
package transport
