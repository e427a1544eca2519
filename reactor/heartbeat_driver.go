// File: reactor/heartbeat_driver.go
// Author: momentics <momentics@gmail.com>
//
// Goroutine polling the heartbeat deadline for reactors without a native timer.

package reactor

import (
	"sync"
	"time"
)

// HeartbeatDriver sleeps until each heartbeat deadline and polls it.
type HeartbeatDriver struct {
	hb      HeartbeatPoller
	once    sync.Once
	stop    chan struct{}
	stopped chan struct{}
	started bool
	mu      sync.Mutex
}

func NewHeartbeatDriver(hb HeartbeatPoller) *HeartbeatDriver {
	return &HeartbeatDriver{hb: hb, stop: make(chan struct{}), stopped: make(chan struct{})}
}

// Start launches the driver once; later calls are no-ops.
func (d *HeartbeatDriver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	go d.run()
}

func (d *HeartbeatDriver) run() {
	defer close(d.stopped)
	for {
		left, ok := d.hb.PollTimeout()
		if !ok {
			return
		}
		t := time.NewTimer(left)
		select {
		case <-t.C:
		case <-d.stop:
			t.Stop()
			return
		}
	}
}

// Stop ends the driver and waits for it if it was started.
func (d *HeartbeatDriver) Stop() {
	d.once.Do(func() { close(d.stop) })
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if started {
		<-d.stopped
	}
}
