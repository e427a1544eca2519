// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Negotiated connection parameters with listener support.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// Configuration holds values negotiated during connection.tune. The
// handshake writes them; every other component only reads.
type Configuration struct {
	frameMax   atomic.Uint32
	channelMax atomic.Uint32
	heartbeat  atomic.Uint32

	mu        sync.Mutex
	listeners []func(Tuning)
}

// Tuning is a snapshot of the negotiated values.
type Tuning struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

// NewConfiguration returns a configuration with nothing negotiated yet.
func NewConfiguration() *Configuration {
	return &Configuration{}
}

func (c *Configuration) FrameMax() uint32   { return c.frameMax.Load() }
func (c *Configuration) ChannelMax() uint16 { return uint16(c.channelMax.Load()) }
func (c *Configuration) Heartbeat() uint16  { return uint16(c.heartbeat.Load()) }

// HeartbeatInterval is the negotiated heartbeat period in seconds as a duration.
func (c *Configuration) HeartbeatInterval() time.Duration {
	return time.Duration(c.Heartbeat()) * time.Second
}

// Snapshot returns the current values.
func (c *Configuration) Snapshot() Tuning {
	return Tuning{ChannelMax: c.ChannelMax(), FrameMax: c.FrameMax(), Heartbeat: c.Heartbeat()}
}

// Set stores negotiated values and notifies listeners synchronously.
func (c *Configuration) Set(t Tuning) {
	c.frameMax.Store(t.FrameMax)
	c.channelMax.Store(uint32(t.ChannelMax))
	c.heartbeat.Store(uint32(t.Heartbeat))

	c.mu.Lock()
	listeners := append([]func(Tuning){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(t)
	}
}

// OnTune registers a listener called after every Set.
func (c *Configuration) OnTune(fn func(Tuning)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
