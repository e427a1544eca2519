// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown unifies component teardown.
type GracefulShutdown interface {
	// Shutdown stops all internal services and releases resources.
	Shutdown() error
}
