// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor bridges socket readiness and heartbeat deadlines to the
// I/O loop: SocketState is the loop's view and wake primitive, reactors feed
// it from epoll (Linux) or from timers on other platforms.
package reactor
