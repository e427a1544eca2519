// File: internal/channels/channels.go
// Package channels is the channel table of one connection: an arena of
// channels addressed by id, plus channel 0 which drives the handshake and
// connection-level methods.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/control"
	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/internal/frames"
	"github.com/momentics/hioload-amqp/internal/promise"
	"github.com/momentics/hioload-amqp/internal/rpc"
	"github.com/momentics/hioload-amqp/internal/status"
	"github.com/rs/zerolog"
)

// Handshake holds what the client announces during connection setup.
type Handshake struct {
	Requested        protocol.Tune
	Username         string
	Password         string
	VHost            string
	Locale           string
	ClientProperties map[string]string
}

// Channels is safe for concurrent use. The table lock guards membership;
// each channel guards its own state.
type Channels struct {
	mu       sync.RWMutex
	channels map[uint16]*Channel
	nextID   uint16

	status *status.Status
	config *control.Configuration
	frames *frames.Frames
	rpc    rpc.Handle
	hs     Handshake
	log    zerolog.Logger

	closeMu sync.Mutex
	closing *promise.Promise
}

var _ rpc.Channels = (*Channels)(nil)

// New creates the table with channel 0.
func New(st *status.Status, config *control.Configuration, fr *frames.Frames, h rpc.Handle, hs Handshake, log zerolog.Logger) *Channels {
	c := &Channels{
		channels: make(map[uint16]*Channel),
		nextID:   1,
		status:   st,
		config:   config,
		frames:   fr,
		rpc:      h,
		hs:       hs,
		log:      log,
	}
	c.channels[0] = newChannel(0, c)
	return c
}

// Start begins the handshake by queuing the protocol header.
func (c *Channels) Start() {
	c.status.Set(api.StateConnecting)
	c.frames.Push(protocol.ProtocolHeader(), nil)
}

func (c *Channels) usable() error {
	st := c.status.State()
	if st == api.StateConnected {
		return nil
	}
	if err := c.status.Err(); err != nil {
		return err
	}
	return fmt.Errorf("connection is %s: %w", st, api.ErrInvalidConnectionState)
}

// Get returns the channel with id.
func (c *Channels) Get(id uint16) (*Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[id]
	return ch, ok
}

// Len returns the number of channels, channel 0 included.
func (c *Channels) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels)
}

// Open allocates the lowest free id and sends channel.open. The channel is
// usable once Opened resolves.
func (c *Channels) Open() (*Channel, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	max := c.config.ChannelMax()
	if max == 0 {
		max = 0xFFFF
	}
	c.mu.Lock()
	id, ok := c.allocate(max)
	if !ok {
		c.mu.Unlock()
		return nil, api.NewError(api.ErrCodeResourceExhausted, "no free channel id").WithContext("channel_max", max)
	}
	ch := newChannel(id, c)
	c.channels[id] = ch
	c.mu.Unlock()

	c.frames.Push(protocol.ChannelOpen(id), nil)
	return ch, nil
}

// allocate must be called with mu held.
func (c *Channels) allocate(max uint16) (uint16, bool) {
	start := c.nextID
	if start == 0 || start > max {
		start = 1
	}
	id := start
	for {
		if _, used := c.channels[id]; !used {
			c.nextID = id + 1
			return id, true
		}
		id++
		if id == 0 || id > max {
			id = 1
		}
		if id == start {
			return 0, false
		}
	}
}

func (c *Channels) remove(id uint16, cause error) bool {
	c.mu.Lock()
	ch, ok := c.channels[id]
	if ok && id != 0 {
		delete(c.channels, id)
	}
	c.mu.Unlock()
	if ok && id != 0 {
		ch.finish(cause)
	}
	return ok && id != 0
}

func (c *Channels) all() []*Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

// Flow reports whether every channel accepts content frames.
func (c *Channels) Flow() bool {
	for _, ch := range c.all() {
		if !ch.Flow() {
			return false
		}
	}
	return true
}

// HandleFrame dispatches one inbound frame. A returned error is fatal to
// the connection.
func (c *Channels) HandleFrame(f protocol.Frame) error {
	if f.Type == protocol.FrameHeartbeat {
		c.log.Trace().Msg("heartbeat received")
		return nil
	}
	ch, ok := c.Get(f.Channel)
	if !ok {
		c.log.Warn().Uint16("channel", f.Channel).Msg("frame for unknown channel")
		c.rpc.CloseConnection(protocol.ReplyChannelError, fmt.Sprintf("unknown channel %d", f.Channel), 0, 0)
		return nil
	}
	if f.Channel == 0 {
		return c.handleConnection(f)
	}
	return ch.handle(f)
}

// CancelConsumer sends basic.cancel on channel.
func (c *Channels) CancelConsumer(channel uint16, consumerTag string) (*promise.Promise, error) {
	ch, ok := c.Get(channel)
	if !ok || channel == 0 {
		return nil, api.ErrChannelNotFound
	}
	return ch.Cancel(consumerTag)
}

// CloseChannel sends channel.close on channel.
func (c *Channels) CloseChannel(channel uint16, replyCode uint16, replyText string) (*promise.Promise, error) {
	ch, ok := c.Get(channel)
	if !ok || channel == 0 {
		return nil, api.ErrChannelNotFound
	}
	return ch.Close(replyCode, replyText)
}

// CloseConnection moves to Closing and sends connection.close. The promise
// resolves when the broker's close-ok has been processed.
func (c *Channels) CloseConnection(replyCode uint16, replyText string, classID, methodID uint16) (*promise.Promise, error) {
	if c.status.State().Terminal() {
		return nil, nil
	}
	c.closeMu.Lock()
	if c.closing != nil {
		p := c.closing
		c.closeMu.Unlock()
		return p, nil
	}
	p := promise.New()
	c.closing = p
	c.closeMu.Unlock()

	c.SetConnectionClosing()
	c.frames.Push(protocol.ConnectionClose(protocol.Close{
		ReplyCode: replyCode,
		ReplyText: replyText,
		ClassID:   classID,
		MethodID:  methodID,
	}), nil)
	return p, nil
}

// SendConnectionCloseOk answers a broker-initiated connection.close; once
// the close-ok is on the wire the connection is closed (cause nil) or
// errored.
func (c *Channels) SendConnectionCloseOk(cause error) (*promise.Promise, error) {
	written := c.frames.Send(protocol.ConnectionCloseOk())
	h := c.rpc
	h.RegisterInternal(func(ctx context.Context) error {
		if err := written.Wait(ctx); err != nil {
			return err
		}
		if cause == nil {
			h.SetConnectionClosed(nil)
		} else {
			h.SetConnectionError(cause)
		}
		return nil
	})
	return nil, nil
}

// RemoveChannel drops channel from the table, failing its promises with cause.
func (c *Channels) RemoveChannel(channel uint16, cause error) error {
	if !c.remove(channel, cause) {
		return api.ErrChannelNotFound
	}
	return nil
}

func (c *Channels) SetConnectionClosing() {
	c.status.Set(api.StateClosing)
	for _, ch := range c.all() {
		ch.setState(StateClosing)
	}
}

// SetConnectionClosed marks every channel closed and drops frames that can
// no longer be written.
func (c *Channels) SetConnectionClosed(cause error) {
	c.status.Set(api.StateClosed)
	for _, ch := range c.all() {
		ch.finish(cause)
	}
	dropped := cause
	if dropped == nil {
		dropped = api.ErrConnectionClosed
	}
	c.frames.DropPending(dropped)
	c.resolveClosing(cause)
}

// SetConnectionError propagates cause to the status, every channel and
// every queued frame.
func (c *Channels) SetConnectionError(cause error) {
	if cause == nil {
		cause = api.ErrConnectionClosed
	}
	c.status.SetError(cause)
	for _, ch := range c.all() {
		ch.finish(cause)
	}
	c.frames.DropPending(cause)
	c.resolveClosing(cause)
}

func (c *Channels) resolveClosing(cause error) {
	c.closeMu.Lock()
	p := c.closing
	c.closeMu.Unlock()
	if p != nil {
		p.Resolve(cause)
	}
}
