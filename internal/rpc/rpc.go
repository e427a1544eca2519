// File: internal/rpc/rpc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Producers enqueue commands through a Handle. Run consumes them in order:
// the synchronous part of each action runs on the consumer goroutine, the
// completion is awaited on the executor and a failure there becomes a
// connection error. The reactor is woken after every command.

package rpc

import (
	"context"
	"errors"

	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/control"
	"github.com/momentics/hioload-amqp/internal/promise"
	"github.com/rs/zerolog"
)

// Channels is the channel table as seen by the command consumer.
// Methods returning a promise have pushed their frames already; the promise
// completes the action. A nil promise means the action is done.
// ErrChannelNotFound from any method makes the command a no-op.
type Channels interface {
	CancelConsumer(channel uint16, consumerTag string) (*promise.Promise, error)
	CloseChannel(channel uint16, replyCode uint16, replyText string) (*promise.Promise, error)
	CloseConnection(replyCode uint16, replyText string, classID, methodID uint16) (*promise.Promise, error)
	SendConnectionCloseOk(cause error) (*promise.Promise, error)
	RemoveChannel(channel uint16, cause error) error
	SetConnectionClosing()
	SetConnectionClosed(cause error)
	SetConnectionError(cause error)
}

// RPC owns the command queue and its consumer.
type RPC struct {
	box      *mailbox
	executor api.Executor
	waker    api.Waker
	log      zerolog.Logger
	metrics  *control.Metrics
}

// Handle is the producer side. Safe for concurrent use; copies share the queue.
type Handle struct {
	rpc *RPC
}

// New creates the command channel. metrics may be nil.
func New(executor api.Executor, waker api.Waker, log zerolog.Logger, metrics *control.Metrics) *RPC {
	return &RPC{
		box:      newMailbox(),
		executor: executor,
		waker:    waker,
		log:      log,
		metrics:  metrics,
	}
}

// Handle returns a producer handle.
func (r *RPC) Handle() Handle {
	return Handle{rpc: r}
}

// Pending returns the number of queued commands.
func (r *RPC) Pending() int {
	return r.box.len()
}

func (h Handle) CancelConsumer(channel uint16, consumerTag string) {
	h.send(Command{Kind: KindCancelConsumer, Channel: channel, ConsumerTag: consumerTag})
}

func (h Handle) CloseChannel(channel uint16, replyCode uint16, replyText string) {
	h.send(Command{Kind: KindCloseChannel, Channel: channel, ReplyCode: replyCode, ReplyText: replyText})
}

func (h Handle) CloseConnection(replyCode uint16, replyText string, classID, methodID uint16) {
	h.send(Command{Kind: KindCloseConnection, ReplyCode: replyCode, ReplyText: replyText, ClassID: classID, MethodID: methodID})
}

func (h Handle) SendConnectionCloseOk(cause error) {
	h.send(Command{Kind: KindSendConnectionCloseOk, Err: cause})
}

func (h Handle) RemoveChannel(channel uint16, cause error) {
	h.send(Command{Kind: KindRemoveChannel, Channel: channel, Err: cause})
}

func (h Handle) SetConnectionClosing() {
	h.send(Command{Kind: KindSetConnectionClosing})
}

func (h Handle) SetConnectionClosed(cause error) {
	h.send(Command{Kind: KindSetConnectionClosed, Err: cause})
}

func (h Handle) SetConnectionError(cause error) {
	h.send(Command{Kind: KindSetConnectionError, Err: cause})
}

// Stop enqueues the sentinel ending Run. Commands queued after it may not run.
func (h Handle) Stop() {
	h.rpc.log.Trace().Msg("stopping internal command channel")
	h.rpc.box.push(Command{Kind: KindStop})
}

// RegisterInternal runs fn on the executor; a non-nil error from fn becomes
// a connection error.
func (h Handle) RegisterInternal(fn func(ctx context.Context) error) {
	r := h.rpc
	err := r.executor.Submit(func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			h.SetConnectionError(err)
		}
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("internal action not scheduled")
	}
}

// await registers completion of p as an internal action.
func (h Handle) await(p *promise.Promise) {
	if p == nil {
		return
	}
	h.RegisterInternal(func(ctx context.Context) error {
		<-p.Done()
		return p.Err()
	})
}

func (h Handle) send(c Command) {
	r := h.rpc
	r.log.Trace().Stringer("command", c).Msg("queuing internal command")
	// Fails only once the consumer is gone.
	r.box.push(c)
	r.waker.Wake()
}

// Run consumes commands until Stop or ctx ends. It is started once per
// connection on its own goroutine.
func (r *RPC) Run(ctx context.Context, channels Channels) {
	h := r.Handle()
	for {
		c, ok := r.box.recv(ctx)
		if !ok || c.Kind == KindStop {
			break
		}
		r.log.Trace().Stringer("command", c).Msg("handling internal command")
		r.metrics.Command(c.Kind.String())
		r.dispatch(h, channels, c)
		r.waker.Wake()
	}
	r.log.Trace().Msg("internal command channel stopped")
}

func (r *RPC) dispatch(h Handle, channels Channels, c Command) {
	var (
		p   *promise.Promise
		err error
	)
	switch c.Kind {
	case KindCancelConsumer:
		p, err = channels.CancelConsumer(c.Channel, c.ConsumerTag)
	case KindCloseChannel:
		p, err = channels.CloseChannel(c.Channel, c.ReplyCode, c.ReplyText)
	case KindCloseConnection:
		p, err = channels.CloseConnection(c.ReplyCode, c.ReplyText, c.ClassID, c.MethodID)
	case KindSendConnectionCloseOk:
		p, err = channels.SendConnectionCloseOk(c.Err)
	case KindRemoveChannel:
		err = channels.RemoveChannel(c.Channel, c.Err)
	case KindSetConnectionClosing:
		channels.SetConnectionClosing()
	case KindSetConnectionClosed:
		channels.SetConnectionClosed(c.Err)
	case KindSetConnectionError:
		channels.SetConnectionError(c.Err)
	}
	switch {
	case errors.Is(err, api.ErrChannelNotFound):
		r.log.Debug().Stringer("command", c).Msg("channel gone, command ignored")
	case err != nil:
		channels.SetConnectionError(api.NewError(api.ErrCodeInternal, "internal command failed").
			WithContext("command", c.Kind.String()).
			WithContext("channel", c.Channel).
			WithCause(err))
	default:
		h.await(p)
	}
}
