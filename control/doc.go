// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, metrics and debug introspection for an AMQP connection.
//
// Provides concurrent-safe state handling primitives including:
//   - Negotiated connection parameters written once by the handshake
//   - Connection options loaded from TOML files
//   - Prometheus counters for the I/O loop and command channel
//   - Debug probes exporting a snapshot of runtime state
package control
