// File: internal/ioloop/ioloop.go
// Package ioloop drives one broker connection: it waits on the reactor,
// writes staged frames, reads and dispatches inbound frames.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ioloop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/control"
	"github.com/momentics/hioload-amqp/core/buffer"
	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/internal/concurrency"
	"github.com/momentics/hioload-amqp/internal/frames"
	"github.com/momentics/hioload-amqp/internal/heartbeat"
	"github.com/momentics/hioload-amqp/internal/rpc"
	"github.com/momentics/hioload-amqp/internal/status"
	"github.com/momentics/hioload-amqp/reactor"
	"github.com/rs/zerolog"
)

const (
	minFrameSize = protocol.FrameMinSize
	// bufferFrames is how many maximum-size frames each buffer holds. The
	// smallest buffer fits one body frame cut without a frame_max.
	bufferFrames = protocol.UnboundedFrameSize / minFrameSize
)

type loopState int

const (
	stateInitial loopState = iota
	stateConnected
	stateStop
)

func (s loopState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateConnected:
		return "connected"
	case stateStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Channels receives inbound frames and connection-wide state changes.
// Satisfied by *channels.Channels.
type Channels interface {
	HandleFrame(f protocol.Frame) error
	Flow() bool
	SetConnectionClosed(cause error)
	SetConnectionError(cause error)
}

// Params are the collaborators of one loop.
type Params struct {
	Stream   api.Stream
	Status   *status.Status
	Config   *control.Configuration
	Frames   *frames.Frames
	Channels Channels
	RPC      rpc.Handle
	State    *reactor.SocketState
	// Builder creates the reactor; nil selects reactor.DefaultBuilder.
	Builder reactor.Builder
	Metrics *control.Metrics
	Log     zerolog.Logger
}

// Loop owns the socket, both frame buffers and the write ledger. Everything
// but Start, Wait and Done runs on the loop goroutine.
type Loop struct {
	stream    api.Stream
	status    *status.Status
	config    *control.Configuration
	frames    *frames.Frames
	channels  Channels
	rpc       rpc.Handle
	state     *reactor.SocketState
	reactor   api.Reactor
	heartbeat *heartbeat.Heartbeat
	metrics   *control.Metrics
	log       zerolog.Logger

	send   *buffer.Buffer
	recv   *buffer.Buffer
	ledger *frames.Ledger

	frameSize  int
	loopState  loopState
	peerClosed bool

	thread concurrency.ThreadHandle
}

// New builds the loop and its reactor. Nothing runs until Start.
func New(p Params) (*Loop, error) {
	if p.Stream == nil || p.Status == nil || p.Config == nil || p.Frames == nil || p.Channels == nil || p.State == nil || p.RPC == (rpc.Handle{}) {
		return nil, fmt.Errorf("ioloop: missing collaborator: %w", api.ErrInvalidArgument)
	}
	frameSize := max(minFrameSize, int(p.Config.FrameMax()))
	l := &Loop{
		stream:    p.Stream,
		status:    p.Status,
		config:    p.Config,
		frames:    p.Frames,
		channels:  p.Channels,
		rpc:       p.RPC,
		state:     p.State,
		metrics:   p.Metrics,
		log:       p.Log,
		send:      buffer.New(bufferFrames * frameSize),
		recv:      buffer.New(bufferFrames * frameSize),
		ledger:    frames.NewLedger(),
		frameSize: frameSize,
	}
	l.heartbeat = heartbeat.New(p.Frames)
	l.heartbeat.OnSend(func() {
		l.metrics.HeartbeatSent()
		l.log.Trace().Msg("heartbeat queued")
	})

	builder := p.Builder
	if builder == nil {
		builder = reactor.DefaultBuilder{Log: p.Log}
	}
	r, err := builder.Build(p.Stream, l.heartbeat, p.State)
	if err != nil {
		return nil, fmt.Errorf("ioloop: build reactor: %w", err)
	}
	l.reactor = r
	return l, nil
}

// Start spawns the loop goroutine and wakes it once.
func (l *Loop) Start() error {
	if !l.thread.Spawn(l.loop) {
		return fmt.Errorf("ioloop: already started: %w", api.ErrInvalidConnectionState)
	}
	l.state.Wake()
	return nil
}

// Wait joins the loop goroutine and returns the error that ended it. Called
// from the loop goroutine itself it returns nil at once.
func (l *Loop) Wait(ctx context.Context) error {
	return l.thread.Wait(ctx)
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.thread.Done()
}

// Heartbeat exposes the connection heartbeat.
func (l *Loop) Heartbeat() *heartbeat.Heartbeat {
	return l.heartbeat
}

func (l *Loop) loop(ctx context.Context) error {
	defer l.release()
	l.log.Debug().Int("frame_size", l.frameSize).Msg("io loop started")
	for l.shouldContinue() {
		if err := l.run(); err != nil {
			return l.criticalError(err)
		}
	}
	l.log.Debug().Stringer("status", l.status.State()).Msg("io loop stopped")
	l.rpc.Stop()
	return nil
}

func (l *Loop) release() {
	l.heartbeat.Cancel()
	l.ledger.Fail(l.closeCause())
	if err := l.reactor.Close(); err != nil {
		l.log.Warn().Err(err).Msg("reactor close failed")
	}
	if err := l.stream.Close(); err != nil {
		l.log.Debug().Err(err).Msg("stream close failed")
	}
}

// closeCause is what staged writes fail with once the loop is gone: the
// connection error when one was recorded, ErrConnectionClosed otherwise.
func (l *Loop) closeCause() error {
	if l.status.Errored() {
		if err := l.status.Err(); err != nil {
			return err
		}
	}
	return api.ErrConnectionClosed
}

func (l *Loop) shouldContinue() bool {
	st := l.status.State()
	return (l.loopState != stateConnected || st == api.StateConnected || st == api.StateClosing) &&
		l.loopState != stateStop &&
		st != api.StateError
}

func (l *Loop) run() error {
	l.state.PollEvents()
	l.ensureSetup()
	l.checkConnectionState()
	if !l.canRead() && !l.canWrite() && l.shouldContinue() {
		l.log.Trace().Msg("waiting for readiness")
		l.state.Wait()
	}
	l.state.PollEvents()

	if l.stream.IsHandshaking() {
		err := l.stream.Handshake()
		if errors.Is(err, api.ErrWouldBlock) {
			l.state.HandleReadResult(err)
			l.state.HandleWriteResult(err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("transport handshake: %w", err)
		}
	}

	if err := l.write(); err != nil {
		return err
	}
	l.checkConnectionState()
	if l.shouldContinue() {
		if err := l.read(); err != nil {
			return err
		}
	}
	if err := l.handleFrames(); err != nil {
		return err
	}
	if l.peerClosed && !l.status.State().Terminal() {
		l.log.Debug().Msg("peer closed the stream")
		l.channels.SetConnectionClosed(api.ErrConnectionClosed)
	}
	l.checkConnectionState()
	return nil
}

// ensureSetup moves the loop to Connected once the handshake completed,
// sizing the buffers and arming the heartbeat from the negotiated values.
func (l *Loop) ensureSetup() {
	if l.loopState != stateInitial || !l.status.Connected() {
		return
	}
	tuning := l.config.Snapshot()
	l.frameSize = max(l.frameSize, int(tuning.FrameMax))
	l.send.Grow(bufferFrames * l.frameSize)
	l.recv.Grow(bufferFrames * l.frameSize)
	if tuning.Heartbeat != 0 {
		l.heartbeat.SetTimeout(time.Duration(tuning.Heartbeat) * 500 * time.Millisecond)
		l.reactor.StartHeartbeat()
	}
	l.loopState = stateConnected
	l.log.Debug().
		Stringer("peer", l.stream.RemoteAddr()).
		Uint32("frame_max", tuning.FrameMax).
		Uint16("channel_max", tuning.ChannelMax).
		Uint16("heartbeat", tuning.Heartbeat).
		Msg("connected")
}

func (l *Loop) checkConnectionState() {
	if l.status.Closed() {
		l.loopState = stateStop
	}
}

func (l *Loop) hasData() bool {
	return l.frames.Ready(l.channels.Flow()) || l.send.AvailableData() > 0 || l.ledger.Len() > 0
}

func (l *Loop) canWrite() bool {
	return l.state.Writable() && l.hasData() && !l.status.Blocked()
}

func (l *Loop) canRead() bool {
	return l.state.Readable() && l.recv.AvailableData() < l.recv.Capacity()
}

func (l *Loop) write() error {
	if l.state.Writable() {
		if err := l.flush(); err != nil {
			return err
		}
	}
	for l.canWrite() {
		if err := l.writeToStream(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) flush() error {
	if err := l.state.HandleWriteResult(l.stream.Flush()); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (l *Loop) writeToStream() error {
	if err := l.flush(); err != nil {
		return err
	}
	if err := l.serialize(); err != nil {
		return err
	}
	n, err := l.send.WriteOnce(l.stream)
	if n > 0 {
		l.written(n)
	}
	if err != nil {
		if err := l.state.HandleWriteResult(err); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		return nil
	}
	if n == 0 {
		return l.state.HandleWriteResult(api.ErrWouldBlock)
	}
	return l.flush()
}

// written accounts for n bytes accepted by the stream.
func (l *Loop) written(n int) {
	l.heartbeat.UpdateLastWrite()
	l.metrics.BytesWritten(n)
	l.send.Consume(n)
	if surplus := l.ledger.Written(n); surplus > 0 {
		l.log.Error().Int("surplus", surplus).Msg("wrote bytes not tracked by any frame")
	}
	l.log.Trace().Int("bytes", n).Int("staged", l.send.AvailableData()).Msg("wrote to stream")
}

// serialize stages queued frames into the send buffer until it is full or
// the queue has nothing ready.
func (l *Loop) serialize() error {
	l.send.Compact()
	frameMax := int(l.config.FrameMax())
	for {
		entry, ok := l.frames.Pop(l.channels.Flow())
		if !ok {
			return nil
		}
		size := entry.Frame.EncodedLen()
		if (frameMax > 0 && size > frameMax) || size > l.send.Capacity() {
			err := fmt.Errorf("outbound %s of %d bytes (frame_max %d): %w", entry.Frame, size, frameMax, api.ErrFrameTooLarge)
			if entry.Promise != nil {
				entry.Promise.Resolve(err)
			}
			return err
		}
		cp := l.send.Checkpoint()
		n, err := protocol.EncodeFrame(l.send.Space(), entry.Frame)
		if errors.Is(err, protocol.ErrBufferTooSmall) {
			l.send.Rollback(cp)
			l.frames.Retry(entry)
			return nil
		}
		if err != nil {
			l.send.Rollback(cp)
			if entry.Promise != nil {
				entry.Promise.Resolve(err)
			}
			return fmt.Errorf("serialize %s: %w", entry.Frame, err)
		}
		l.send.Fill(n)
		l.ledger.Push(n, entry.Promise)
		l.metrics.FrameSent()
		l.log.Trace().Stringer("frame", entry.Frame).Int("bytes", n).Msg("frame staged")
	}
}

func (l *Loop) read() error {
	for l.canRead() {
		switch l.status.State() {
		case api.StateError:
			return fmt.Errorf("read: %w", api.ErrInvalidConnectionState)
		case api.StateClosed:
			return nil
		}
		if err := l.readFromStream(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) readFromStream() error {
	n, err := l.recv.ReadOnce(l.stream)
	if n > 0 {
		l.recv.Fill(n)
		l.metrics.BytesRead(n)
		l.log.Trace().Int("bytes", n).Int("buffered", l.recv.AvailableData()).Msg("read from stream")
	}
	switch {
	case err == nil && n == 0:
		return l.state.HandleReadResult(api.ErrWouldBlock)
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if l.status.Closing() || l.status.Closed() {
			l.peerClosed = true
			return l.state.HandleReadResult(api.ErrWouldBlock)
		}
		return fmt.Errorf("read: peer closed the stream: %w", err)
	}
	if err := l.state.HandleReadResult(err); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

// handleFrames parses and dispatches every complete frame in the receive
// buffer, in arrival order.
func (l *Loop) handleFrames() error {
	frameMax := int(l.config.FrameMax())
	for l.recv.AvailableData() > 0 && !l.status.State().Terminal() {
		if size, ok := protocol.PeekFrameSize(l.recv.Data()); ok && frameMax > 0 && size > frameMax {
			return l.frameTooLarge(size, frameMax)
		}
		f, consumed, err := protocol.ParseFrame(l.recv.Data())
		if protocol.IsIncomplete(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse: %w", err)
		}
		if frameMax > 0 && consumed > frameMax {
			return l.frameTooLarge(consumed, frameMax)
		}
		l.recv.Consume(consumed)
		l.metrics.FrameReceived()
		l.log.Trace().Stringer("frame", f).Msg("frame received")
		if err := l.channels.HandleFrame(f); err != nil {
			return fmt.Errorf("dispatch %s: %w", f, err)
		}
	}
	return nil
}

// frameTooLarge tells the peer before tearing the connection down. The close
// is staged behind the bytes already in the send buffer, so it starts on a
// frame boundary, and the buffer is drained as far as the stream accepts
// without waiting since the loop stops right after.
func (l *Loop) frameTooLarge(size, frameMax int) error {
	amqpErr := protocol.NewAMQPError(protocol.ReplyFrameError, "frame too large: %d bytes", size)
	closeFrame := protocol.ConnectionClose(protocol.Close{ReplyCode: amqpErr.Code, ReplyText: amqpErr.Text})
	l.send.Compact()
	if n, err := protocol.EncodeFrame(l.send.Space(), closeFrame); err == nil {
		l.send.Fill(n)
		l.ledger.Push(n, nil)
	} else {
		l.log.Debug().Err(err).Msg("could not stage close for oversized frame")
	}
	l.drain()
	l.log.Error().Int("size", size).Int("frame_max", frameMax).Msg("inbound frame exceeds frame_max")
	return amqpErr
}

// drain writes staged bytes until the buffer is empty or the stream stops
// accepting them. Blocked and writable state are ignored.
func (l *Loop) drain() {
	for l.send.AvailableData() > 0 {
		n, err := l.send.WriteOnce(l.stream)
		if n > 0 {
			l.written(n)
		}
		if err != nil || n == 0 {
			if err != nil && !errors.Is(err, api.ErrWouldBlock) {
				l.log.Debug().Err(err).Msg("could not notify peer of oversized frame")
			}
			return
		}
	}
	if err := l.stream.Flush(); err != nil {
		l.log.Debug().Err(err).Msg("flush after oversized frame failed")
	}
}

// criticalError stops the loop and propagates err to the status, every
// channel and every pending write.
func (l *Loop) criticalError(err error) error {
	l.metrics.CriticalError()
	l.log.Error().Err(err).Stringer("loop_state", l.loopState).Msg("connection failed")
	l.loopState = stateStop
	l.channels.SetConnectionError(err)
	l.ledger.Fail(err)
	return err
}
