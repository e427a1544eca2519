// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the AMQP 0-9-1 wire framing used by the hioload-amqp connection engine.
//
// Scope is deliberately narrow: frame boundaries, the protocol header, and the
// handful of connection/channel methods the engine itself must speak.
//
// Includes:
//   - Frame encoding directly into a caller-provided window (no intermediate copies)
//   - Frame parsing with incomplete/fatal error distinction
//   - Connection handshake, close and flow-control method codecs
//   - Content header encoding for publishes
package protocol
