// File: fake/broker.go
// Author: momentics <momentics@gmail.com>

package fake

import (
	"bytes"
	"sync"

	"github.com/momentics/hioload-amqp/core/protocol"
)

var amqpHeader = []byte{'A', 'M', 'Q', 'P', 0, 0, 9, 1}

// Broker answers a client over a fake Stream: it completes the connection
// handshake, opens and closes channels, acknowledges cancels and records
// every frame the client sends.
type Broker struct {
	mu        sync.Mutex
	stream    *Stream
	tune      protocol.Tune
	pending   []byte
	header    bool
	frames    []protocol.Frame
	silent    bool
	onFrame   func(f protocol.Frame)
	malformed bool
}

// NewBroker attaches a broker to stream. tune is what connection.tune offers.
func NewBroker(stream *Stream, tune protocol.Tune) *Broker {
	b := &Broker{stream: stream, tune: tune}
	stream.OnWrite(b.receive)
	return b
}

// Silence stops automatic replies; frames are still recorded.
func (b *Broker) Silence(silent bool) {
	b.mu.Lock()
	b.silent = silent
	b.mu.Unlock()
}

// OnFrame installs a hook called for every client frame after recording.
func (b *Broker) OnFrame(fn func(f protocol.Frame)) {
	b.mu.Lock()
	b.onFrame = fn
	b.mu.Unlock()
}

// Frames returns every frame received from the client so far.
func (b *Broker) Frames() []protocol.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]protocol.Frame(nil), b.frames...)
}

// Methods returns the class/method pairs received, in order.
func (b *Broker) Methods() []protocol.Method {
	var out []protocol.Method
	for _, f := range b.Frames() {
		if f.Type != protocol.FrameMethod {
			continue
		}
		if m, err := protocol.ParseMethod(f.Payload); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Malformed reports whether the client sent bytes that could not be parsed.
func (b *Broker) Malformed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.malformed
}

// Send feeds f to the client.
func (b *Broker) Send(f protocol.Frame) {
	buf := make([]byte, f.EncodedLen())
	n, err := protocol.EncodeFrame(buf, f)
	if err != nil {
		panic(err)
	}
	b.stream.Feed(buf[:n])
}

func (b *Broker) receive(p []byte) {
	b.mu.Lock()
	b.pending = append(b.pending, p...)
	var replies []protocol.Frame
	var received []protocol.Frame
	if !b.header && len(b.pending) >= len(amqpHeader) {
		if !bytes.Equal(b.pending[:len(amqpHeader)], amqpHeader) {
			b.malformed = true
		}
		b.pending = b.pending[len(amqpHeader):]
		b.header = true
		if !b.silent {
			replies = append(replies, protocol.ConnectionStart("PLAIN", "en_US"))
		}
	}
	for b.header && len(b.pending) > 0 {
		f, n, err := protocol.ParseFrame(b.pending)
		if protocol.IsIncomplete(err) {
			break
		}
		if err != nil {
			b.malformed = true
			b.pending = nil
			break
		}
		b.pending = b.pending[n:]
		b.frames = append(b.frames, f)
		received = append(received, f)
		if !b.silent {
			replies = append(replies, b.reply(f)...)
		}
	}
	hook := b.onFrame
	b.mu.Unlock()

	if hook != nil {
		for _, f := range received {
			hook(f)
		}
	}
	for _, f := range replies {
		b.Send(f)
	}
}

// reply must be called with mu held.
func (b *Broker) reply(f protocol.Frame) []protocol.Frame {
	if f.Type != protocol.FrameMethod {
		return nil
	}
	m, err := protocol.ParseMethod(f.Payload)
	if err != nil {
		b.malformed = true
		return nil
	}
	switch {
	case m.Is(protocol.ClassConnection, protocol.MethodConnectionStartOk):
		return []protocol.Frame{protocol.ConnectionTune(b.tune)}
	case m.Is(protocol.ClassConnection, protocol.MethodConnectionOpen):
		return []protocol.Frame{protocol.ConnectionOpenOk()}
	case m.Is(protocol.ClassConnection, protocol.MethodConnectionClose):
		return []protocol.Frame{protocol.ConnectionCloseOk()}
	case m.Is(protocol.ClassChannel, protocol.MethodChannelOpen):
		return []protocol.Frame{protocol.ChannelOpenOk(f.Channel)}
	case m.Is(protocol.ClassChannel, protocol.MethodChannelClose):
		return []protocol.Frame{protocol.ChannelCloseOk(f.Channel)}
	case m.Is(protocol.ClassBasic, protocol.MethodBasicCancel):
		tag, err := protocol.ParseConsumerTag(m.Args)
		if err != nil {
			b.malformed = true
			return nil
		}
		return []protocol.Frame{protocol.BasicCancelOk(f.Channel, tag)}
	}
	return nil
}
