// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executors and goroutine handles used to run work off the I/O loop.
// Tasks receive a context marking the worker that runs them, so shutdown
// paths can detect re-entrant calls and skip joining themselves.
package concurrency
