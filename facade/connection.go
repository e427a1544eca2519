// File: facade/connection.go
// Unified facade over one broker connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection aggregates the engine components behind a single type: the
// outbound frame queue, the channel table, the internal command channel,
// the executor and the I/O loop. It dials, waits for the handshake, opens
// channels and tears everything down in order on Close.

package facade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/control"
	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/internal/channels"
	"github.com/momentics/hioload-amqp/internal/concurrency"
	"github.com/momentics/hioload-amqp/internal/frames"
	"github.com/momentics/hioload-amqp/internal/ioloop"
	"github.com/momentics/hioload-amqp/internal/logging"
	"github.com/momentics/hioload-amqp/internal/rpc"
	"github.com/momentics/hioload-amqp/internal/status"
	"github.com/momentics/hioload-amqp/reactor"
	"github.com/momentics/hioload-amqp/transport"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Connection is one established broker connection. Safe for concurrent use.
type Connection struct {
	id      string
	address string

	status *status.Status
	config *control.Configuration
	frames *frames.Frames
	table  *channels.Channels
	rpc    *rpc.RPC
	loop   *ioloop.Loop
	state  *reactor.SocketState
	debug  *control.DebugProbes
	log    zerolog.Logger

	// owned is the private executor, nil when one was supplied.
	owned *concurrency.DefaultExecutor

	rpcCancel   context.CancelFunc
	rpcDone     chan struct{}
	releaseOnce sync.Once
	releaseErr  error
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Connection)(nil)

// Dial connects to opts.Address over TCP and completes the handshake.
func Dial(ctx context.Context, opts control.Options, options ...Option) (*Connection, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	dialCtx := ctx
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}
	stream, err := transport.Dial(dialCtx, opts.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Address, err)
	}
	return NewConnection(dialCtx, stream, opts, options...)
}

// NewConnection runs the protocol over an established stream and returns
// once the broker accepted the connection. The stream is owned by the
// connection from then on, and closed on failure.
func NewConnection(ctx context.Context, stream api.Stream, opts control.Options, options ...Option) (*Connection, error) {
	var s settings
	for _, opt := range options {
		opt(&s)
	}
	id := uuid.NewString()
	base := logging.For("connection")
	if s.log != nil {
		base = *s.log
	}
	log := base.With().Str("conn_id", id).Logger()
	sub := func(component string) zerolog.Logger {
		return log.With().Str("component", component).Logger()
	}

	c := &Connection{
		id:      id,
		address: opts.Address,
		status:  status.New(),
		config:  control.NewConfiguration(),
		state:   reactor.NewSocketState(),
		debug:   control.NewDebugProbes(),
		log:     log,
		rpcDone: make(chan struct{}),
	}
	executor := s.executor
	if executor == nil {
		c.owned = concurrency.NewDefaultExecutor(opts.Workers, sub("executor"))
		executor = c.owned
	}
	c.frames = frames.New(c.state)
	c.rpc = rpc.New(executor, c.state, sub("rpc"), s.metrics)
	c.table = channels.New(c.status, c.config, c.frames, c.rpc.Handle(), channels.Handshake{
		Requested: protocol.Tune{
			ChannelMax: opts.ChannelMax,
			FrameMax:   opts.FrameMax,
			Heartbeat:  opts.Heartbeat,
		},
		Username:         opts.Username,
		Password:         opts.Password,
		VHost:            opts.VHost,
		Locale:           opts.Locale,
		ClientProperties: opts.ClientProperties,
	}, sub("channels"))

	loop, err := ioloop.New(ioloop.Params{
		Stream:   stream,
		Status:   c.status,
		Config:   c.config,
		Frames:   c.frames,
		Channels: c.table,
		RPC:      c.rpc.Handle(),
		State:    c.state,
		Builder:  s.builder,
		Metrics:  s.metrics,
		Log:      sub("ioloop"),
	})
	if err != nil {
		stream.Close()
		c.closeExecutor(ctx)
		return nil, err
	}
	c.loop = loop
	c.registerProbes()

	rpcCtx, cancel := context.WithCancel(context.Background())
	c.rpcCancel = cancel
	go func() {
		defer close(c.rpcDone)
		c.rpc.Run(rpcCtx, c.table)
	}()

	c.table.Start()
	if err := c.loop.Start(); err != nil {
		c.abort(err)
		return nil, err
	}
	if err := c.status.ConnectResolver().Wait(ctx); err != nil {
		c.abort(err)
		return nil, fmt.Errorf("connect %s: %w", opts.Address, err)
	}
	tuning := c.config.Snapshot()
	c.log.Info().
		Str("address", opts.Address).
		Str("vhost", opts.VHost).
		Uint32("frame_max", tuning.FrameMax).
		Uint16("heartbeat", tuning.Heartbeat).
		Msg("connection established")
	return c, nil
}

func (c *Connection) registerProbes() {
	c.debug.RegisterProbe("conn_id", func() any { return c.id })
	c.debug.RegisterProbe("status", func() any { return c.status.State().String() })
	c.debug.RegisterProbe("blocked", func() any { return c.status.Blocked() })
	c.debug.RegisterProbe("tuning", func() any { return c.config.Snapshot() })
	c.debug.RegisterProbe("channels", func() any { return c.table.Len() })
	c.debug.RegisterProbe("frames_pending", func() any { return c.frames.Len() })
	c.debug.RegisterProbe("commands_pending", func() any { return c.rpc.Pending() })
	if c.owned != nil {
		c.debug.RegisterProbe("executor", func() any { return c.owned.Stats() })
	}
}

// ID returns the connection id attached to every log line.
func (c *Connection) ID() string { return c.id }

// Status returns the current connection state.
func (c *Connection) Status() api.ConnectionState { return c.status.State() }

// Err returns the cause once the connection failed.
func (c *Connection) Err() error { return c.status.Err() }

// Blocked reports whether the broker paused publishing.
func (c *Connection) Blocked() bool { return c.status.Blocked() }

// Tuning returns the negotiated channel_max, frame_max and heartbeat.
func (c *Connection) Tuning() control.Tuning { return c.config.Snapshot() }

// Done is closed when the I/O loop has exited.
func (c *Connection) Done() <-chan struct{} { return c.loop.Done() }

// Debug returns a snapshot of internal counters.
func (c *Connection) Debug() map[string]any {
	return c.debug.DumpState()
}

// OpenChannel opens a channel and waits for the broker to confirm it.
func (c *Connection) OpenChannel(ctx context.Context) (*Channel, error) {
	ch, err := c.table.Open()
	if err != nil {
		return nil, err
	}
	if err := ch.Opened().Wait(ctx); err != nil {
		return nil, fmt.Errorf("open channel %d: %w", ch.ID(), err)
	}
	return &Channel{ch: ch}, nil
}

// Close sends connection.close, waits for the broker's answer and releases
// every resource. It must not be called from a delivery hook, which runs on
// the I/O loop.
func (c *Connection) Close(ctx context.Context, replyCode uint16, replyText string) error {
	if !c.status.State().Terminal() {
		c.rpc.Handle().CloseConnection(replyCode, replyText, 0, 0)
	}
	err := c.loop.Wait(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		c.abort(fmt.Errorf("close: %w", ctxErr))
		return ctxErr
	}
	if relErr := c.release(ctx); relErr != nil && err == nil {
		err = relErr
	}
	if err == nil && c.status.Errored() {
		err = c.status.Err()
	}
	return err
}

// Wait blocks until the I/O loop exits and returns the error that ended it.
func (c *Connection) Wait(ctx context.Context) error {
	return c.loop.Wait(ctx)
}

// Shutdown implements api.GracefulShutdown with a normal close.
func (c *Connection) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return c.Close(ctx, protocol.ReplySuccess, "shutdown")
}

// abort fails the connection locally and releases it without waiting for
// the broker.
func (c *Connection) abort(cause error) {
	if !c.status.State().Terminal() {
		c.table.SetConnectionError(cause)
	}
	c.state.Wake()
	if c.loop != nil {
		if done := c.loop.Done(); done != nil {
			<-done
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	c.release(ctx)
}

// release stops the command channel and the private executor once the loop
// is gone.
func (c *Connection) release(ctx context.Context) error {
	c.releaseOnce.Do(func() {
		c.rpc.Handle().Stop()
		select {
		case <-c.rpcDone:
		case <-ctx.Done():
			c.rpcCancel()
			<-c.rpcDone
		}
		c.rpcCancel()
		c.releaseErr = c.closeExecutor(ctx)
		c.log.Debug().Stringer("status", c.status.State()).Msg("connection released")
	})
	return c.releaseErr
}

func (c *Connection) closeExecutor(ctx context.Context) error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Close(ctx)
}
