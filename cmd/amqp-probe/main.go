// File: cmd/amqp-probe/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// amqp-probe connects to a broker with the hioload-amqp engine, optionally
// publishes a burst of messages, and reports what happened.

package main

import "os"

func main() {
	p := &probe{}
	if err := p.command().Execute(); err != nil {
		os.Exit(1)
	}
}
