// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the stream and reactor
// interfaces, plus a scripted broker speaking the connection handshake.
package fake
