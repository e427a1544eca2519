// File: internal/channels/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package channels

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/internal/promise"
)

// State is the lifecycle of one channel.
type State int

const (
	StateInitial State = iota
	StateConnected
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool { return s == StateClosed || s == StateError }

// Channel is one entry of the table. Its fields are guarded by mu.
type Channel struct {
	id    uint16
	table *Channels

	mu      sync.Mutex
	state   State
	flow    bool
	err     error
	opened  *promise.Promise
	closed  *promise.Promise
	cancels map[string]*promise.Promise
	onFrame func(protocol.Frame)
}

func newChannel(id uint16, table *Channels) *Channel {
	return &Channel{
		id:      id,
		table:   table,
		state:   StateInitial,
		flow:    true,
		opened:  promise.New(),
		closed:  promise.New(),
		cancels: make(map[string]*promise.Promise),
	}
}

func (c *Channel) ID() uint16 { return c.id }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Flow reports whether the broker allows publishing on this channel.
func (c *Channel) Flow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow
}

// Err returns the error that ended the channel, if any.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Opened resolves once channel.open-ok arrives.
func (c *Channel) Opened() *promise.Promise { return c.opened }

// Closed resolves once the channel is closed by either side.
func (c *Channel) Closed() *promise.Promise { return c.closed }

// OnFrame installs the hook receiving inbound frames the engine does not
// handle itself (deliveries, content headers and bodies, other methods).
func (c *Channel) OnFrame(fn func(protocol.Frame)) {
	c.mu.Lock()
	c.onFrame = fn
	c.mu.Unlock()
}

func (c *Channel) usable() error {
	if err := c.table.usable(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return fmt.Errorf("channel %d is %s: %w", c.id, c.state, api.ErrInvalidConnectionState)
	}
	return nil
}

func failed(err error) *promise.Promise {
	p := promise.New()
	p.Resolve(err)
	return p
}

// Publish queues basic.publish with its header and body frames. The promise
// resolves once the last frame has been written to the transport.
func (c *Channel) Publish(p protocol.Publish, body []byte) *promise.Promise {
	if err := c.usable(); err != nil {
		return failed(err)
	}
	frameMax := int(c.table.config.FrameMax())
	return c.table.frames.SendAll(protocol.PublishFrames(c.id, p, body, frameMax))
}

// Close sends channel.close; the returned promise resolves on close-ok.
func (c *Channel) Close(replyCode uint16, replyText string) (*promise.Promise, error) {
	if err := c.table.usable(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	switch {
	case c.state == StateClosing:
		c.mu.Unlock()
		return c.closed, nil
	case c.state.terminal():
		c.mu.Unlock()
		return nil, fmt.Errorf("channel %d is %s: %w", c.id, c.state, api.ErrInvalidConnectionState)
	}
	c.state = StateClosing
	c.mu.Unlock()
	c.table.frames.Push(protocol.ChannelClose(c.id, protocol.Close{ReplyCode: replyCode, ReplyText: replyText}), nil)
	return c.closed, nil
}

// Cancel sends basic.cancel; the returned promise resolves on cancel-ok.
func (c *Channel) Cancel(consumerTag string) (*promise.Promise, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	p := promise.New()
	c.mu.Lock()
	if prev, ok := c.cancels[consumerTag]; ok {
		c.mu.Unlock()
		return prev, nil
	}
	c.cancels[consumerTag] = p
	c.mu.Unlock()
	c.table.frames.Push(protocol.BasicCancel(c.id, consumerTag, false), nil)
	return p, nil
}

// setState moves a live channel to state. Terminal states absorb.
func (c *Channel) setState(state State) {
	c.mu.Lock()
	if !c.state.terminal() {
		c.state = state
	}
	c.mu.Unlock()
}

// finish ends the channel with cause (nil for a clean close) and fails or
// resolves every promise still outstanding.
func (c *Channel) finish(cause error) {
	c.mu.Lock()
	if c.state.terminal() {
		c.mu.Unlock()
		return
	}
	if cause == nil {
		c.state = StateClosed
	} else {
		c.state = StateError
		c.err = cause
	}
	cancels := c.cancels
	c.cancels = make(map[string]*promise.Promise)
	c.mu.Unlock()

	pending := cause
	if pending == nil {
		pending = api.ErrConnectionClosed
	}
	c.opened.Resolve(pending)
	c.closed.Resolve(cause)
	for _, p := range cancels {
		p.Resolve(pending)
	}
}

// handle processes an inbound frame for a channel other than 0.
func (c *Channel) handle(f protocol.Frame) error {
	if f.Type != protocol.FrameMethod {
		c.deliver(f)
		return nil
	}
	m, err := protocol.ParseMethod(f.Payload)
	if err != nil {
		return protocol.NewAMQPError(protocol.ReplySyntaxError, "channel %d: %v", c.id, err)
	}
	log := c.table.log
	switch {
	case m.Is(protocol.ClassChannel, protocol.MethodChannelOpenOk):
		c.setState(StateConnected)
		c.opened.Resolve(nil)
		log.Debug().Uint16("channel", c.id).Msg("channel opened")
	case m.Is(protocol.ClassChannel, protocol.MethodChannelFlow):
		active, err := protocol.ParseChannelFlow(m.Args)
		if err != nil {
			return protocol.NewAMQPError(protocol.ReplySyntaxError, "channel.flow: %v", err)
		}
		c.mu.Lock()
		c.flow = active
		c.mu.Unlock()
		c.table.frames.Push(protocol.ChannelFlowOk(c.id, active), nil)
		log.Debug().Uint16("channel", c.id).Bool("active", active).Msg("channel flow")
	case m.Is(protocol.ClassChannel, protocol.MethodChannelFlowOk):
	case m.Is(protocol.ClassChannel, protocol.MethodChannelClose):
		cl, err := protocol.ParseClose(m.Args)
		if err != nil {
			return protocol.NewAMQPError(protocol.ReplySyntaxError, "channel.close: %v", err)
		}
		c.setState(StateClosing)
		c.table.frames.Push(protocol.ChannelCloseOk(c.id), nil)
		var cause error
		if cl.ReplyCode != protocol.ReplySuccess {
			cause = protocol.NewAMQPError(cl.ReplyCode, "%s", cl.ReplyText)
		}
		log.Debug().Uint16("channel", c.id).Uint16("code", cl.ReplyCode).Str("text", cl.ReplyText).Msg("channel closed by broker")
		c.table.rpc.RemoveChannel(c.id, cause)
	case m.Is(protocol.ClassChannel, protocol.MethodChannelCloseOk):
		c.table.remove(c.id, nil)
	case m.Is(protocol.ClassBasic, protocol.MethodBasicCancelOk):
		tag, err := protocol.ParseConsumerTag(m.Args)
		if err != nil {
			return protocol.NewAMQPError(protocol.ReplySyntaxError, "basic.cancel-ok: %v", err)
		}
		c.mu.Lock()
		p, ok := c.cancels[tag]
		delete(c.cancels, tag)
		c.mu.Unlock()
		if ok {
			p.Resolve(nil)
		}
	default:
		c.deliver(f)
	}
	return nil
}

func (c *Channel) deliver(f protocol.Frame) {
	c.mu.Lock()
	fn := c.onFrame
	c.mu.Unlock()
	if fn == nil {
		c.table.log.Trace().Uint16("channel", c.id).Stringer("frame", f).Msg("unhandled frame")
		return
	}
	fn(f)
}
