// File: core/protocol/methods.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection, channel and basic methods spoken by the engine itself.

package protocol

// Close carries connection.close and channel.close arguments.
type Close struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

// ConnectionClose encodes connection.close on channel 0.
func ConnectionClose(c Close) Frame {
	return MethodFrame(0, ClassConnection, MethodConnectionClose, encodeClose(c))
}

// ConnectionCloseOk encodes connection.close-ok.
func ConnectionCloseOk() Frame {
	return MethodFrame(0, ClassConnection, MethodConnectionCloseOk, nil)
}

// ChannelClose encodes channel.close.
func ChannelClose(channel uint16, c Close) Frame {
	return MethodFrame(channel, ClassChannel, MethodChannelClose, encodeClose(c))
}

// ChannelCloseOk encodes channel.close-ok.
func ChannelCloseOk(channel uint16) Frame {
	return MethodFrame(channel, ClassChannel, MethodChannelCloseOk, nil)
}

// ChannelOpen encodes channel.open.
func ChannelOpen(channel uint16) Frame {
	var w argWriter
	w.shortstr("")
	return MethodFrame(channel, ClassChannel, MethodChannelOpen, w.buf)
}

// ChannelFlowOk encodes channel.flow-ok.
func ChannelFlowOk(channel uint16, active bool) Frame {
	var w argWriter
	w.octet(bit(active))
	return MethodFrame(channel, ClassChannel, MethodChannelFlowOk, w.buf)
}

// ParseChannelFlow decodes channel.flow's active flag.
func ParseChannelFlow(args []byte) (bool, error) {
	r := argReader{buf: args}
	active := r.octet("active")&1 == 1
	return active, r.err
}

// ParseClose decodes connection.close or channel.close arguments.
func ParseClose(args []byte) (Close, error) {
	r := argReader{buf: args}
	c := Close{
		ReplyCode: r.short("reply-code"),
		ReplyText: r.shortstr("reply-text"),
		ClassID:   r.short("class-id"),
		MethodID:  r.short("method-id"),
	}
	return c, r.err
}

func encodeClose(c Close) []byte {
	var w argWriter
	w.short(c.ReplyCode)
	w.shortstr(c.ReplyText)
	w.short(c.ClassID)
	w.short(c.MethodID)
	return w.buf
}

// BasicCancel encodes basic.cancel.
func BasicCancel(channel uint16, consumerTag string, noWait bool) Frame {
	var w argWriter
	w.shortstr(consumerTag)
	w.octet(bit(noWait))
	return MethodFrame(channel, ClassBasic, MethodBasicCancel, w.buf)
}

// Publish describes a basic.publish.
type Publish struct {
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Immediate  bool
}

// PublishFrames encodes basic.publish, its content header and the body split
// into frames no larger than frameMax, or UnboundedFrameSize when frameMax
// is 0.
func PublishFrames(channel uint16, p Publish, body []byte, frameMax int) []Frame {
	var w argWriter
	w.short(0)
	w.shortstr(p.Exchange)
	w.shortstr(p.RoutingKey)
	var flags uint8
	if p.Mandatory {
		flags |= 1
	}
	if p.Immediate {
		flags |= 2
	}
	w.octet(flags)

	frames := []Frame{
		MethodFrame(channel, ClassBasic, MethodBasicPublish, w.buf),
		ContentHeader(channel, ClassBasic, uint64(len(body))),
	}
	if frameMax <= 0 {
		frameMax = UnboundedFrameSize
	}
	chunk := len(body)
	if frameMax > FrameOverhead {
		chunk = frameMax - FrameOverhead
	}
	for len(body) > 0 {
		n := min(chunk, len(body))
		frames = append(frames, Frame{Type: FrameBody, Channel: channel, Payload: body[:n]})
		body = body[n:]
	}
	return frames
}

// ContentHeader encodes a content header frame with no properties.
func ContentHeader(channel, classID uint16, bodySize uint64) Frame {
	var w argWriter
	w.short(classID)
	w.short(0)
	w.longlong(bodySize)
	w.short(0)
	return Frame{Type: FrameHeader, Channel: channel, Payload: w.buf}
}

func bit(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// ChannelFlow encodes channel.flow.
func ChannelFlow(channel uint16, active bool) Frame {
	var w argWriter
	w.octet(bit(active))
	return MethodFrame(channel, ClassChannel, MethodChannelFlow, w.buf)
}

// BasicCancelOk encodes basic.cancel-ok.
func BasicCancelOk(channel uint16, consumerTag string) Frame {
	var w argWriter
	w.shortstr(consumerTag)
	return MethodFrame(channel, ClassBasic, MethodBasicCancelOk, w.buf)
}

// ParseConsumerTag decodes the leading consumer-tag of basic.cancel and
// basic.cancel-ok.
func ParseConsumerTag(args []byte) (string, error) {
	r := argReader{buf: args}
	tag := r.shortstr("consumer-tag")
	return tag, r.err
}

// ConnectionOpenOk encodes connection.open-ok as sent by a broker.
func ConnectionOpenOk() Frame {
	var w argWriter
	w.shortstr("")
	return MethodFrame(0, ClassConnection, MethodConnectionOpenOk, w.buf)
}

// ChannelOpenOk encodes channel.open-ok as sent by a broker.
func ChannelOpenOk(channel uint16) Frame {
	var w argWriter
	w.longstr(nil)
	return MethodFrame(channel, ClassChannel, MethodChannelOpenOk, w.buf)
}
