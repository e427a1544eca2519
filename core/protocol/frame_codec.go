// File: core/protocol/frame_codec.go
// Package protocol implements the AMQP frame codec over caller-owned windows.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames are encoded directly into the send buffer's free space and parsed
// straight out of the receive buffer's unconsumed window.

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// FrameType identifies the kind of frame on the wire.
type FrameType uint8

func (t FrameType) String() string {
	switch t {
	case FrameMethod:
		return "method"
	case FrameHeader:
		return "header"
	case FrameBody:
		return "body"
	case FrameHeartbeat:
		return "heartbeat"
	case FrameProtocolHeader:
		return "protocol-header"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Frame is one protocol unit exchanged over the connection.
type Frame struct {
	Type    FrameType
	Channel uint16
	Payload []byte
}

// ProtocolHeader returns the pseudo frame carrying "AMQP0091".
func ProtocolHeader() Frame {
	return Frame{Type: FrameProtocolHeader}
}

// Heartbeat returns a heartbeat frame.
func Heartbeat() Frame {
	return Frame{Type: FrameHeartbeat}
}

// EncodedLen returns the exact number of bytes EncodeFrame writes for f.
func (f Frame) EncodedLen() int {
	if f.Type == FrameProtocolHeader {
		return len(protocolHeader)
	}
	return FrameOverhead + len(f.Payload)
}

// IsContent reports whether f belongs to a publish and is therefore subject
// to channel flow control: basic.publish methods, content headers and bodies.
func (f Frame) IsContent() bool {
	switch f.Type {
	case FrameHeader, FrameBody:
		return true
	case FrameMethod:
		if len(f.Payload) < 4 {
			return false
		}
		return binary.BigEndian.Uint16(f.Payload[0:2]) == ClassBasic &&
			binary.BigEndian.Uint16(f.Payload[2:4]) == MethodBasicPublish
	default:
		return false
	}
}

func (f Frame) String() string {
	if f.Type == FrameMethod && len(f.Payload) >= 4 {
		return fmt.Sprintf("method(channel=%d, class=%d, method=%d, size=%d)", f.Channel,
			binary.BigEndian.Uint16(f.Payload[0:2]), binary.BigEndian.Uint16(f.Payload[2:4]), len(f.Payload))
	}
	return fmt.Sprintf("%s(channel=%d, size=%d)", f.Type, f.Channel, len(f.Payload))
}

func knownType(t FrameType) bool {
	switch t {
	case FrameMethod, FrameHeader, FrameBody, FrameHeartbeat:
		return true
	}
	return false
}

// EncodeFrame serializes f into dst and returns the number of bytes written.
// It returns ErrBufferTooSmall when dst cannot hold the whole frame, in which
// case dst content is unspecified and the caller must roll back.
func EncodeFrame(dst []byte, f Frame) (int, error) {
	if f.Type == FrameProtocolHeader {
		if len(dst) < len(protocolHeader) {
			return 0, ErrBufferTooSmall
		}
		return copy(dst, protocolHeader[:]), nil
	}
	if !knownType(f.Type) {
		return 0, fmt.Errorf("%w: type %s", ErrInvalidFrame, f.Type)
	}
	if uint64(len(f.Payload)) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: payload of %d bytes", ErrInvalidFrame, len(f.Payload))
	}
	n := f.EncodedLen()
	if len(dst) < n {
		return 0, ErrBufferTooSmall
	}
	dst[0] = byte(f.Type)
	binary.BigEndian.PutUint16(dst[1:3], f.Channel)
	binary.BigEndian.PutUint32(dst[3:7], uint32(len(f.Payload)))
	copy(dst[FrameHeaderSize:], f.Payload)
	dst[n-1] = FrameEnd
	return n, nil
}

// PeekFrameSize returns the total encoded size of the frame starting at src
// once its header is available.
func PeekFrameSize(src []byte) (int, bool) {
	if len(src) < FrameHeaderSize {
		return 0, false
	}
	size := binary.BigEndian.Uint32(src[3:7])
	return FrameOverhead + int(size), true
}

// ParseFrame decodes the frame at the start of src. It returns the frame and
// the number of bytes consumed, ErrIncompleteFrame when src holds only part
// of a frame, or a *ParseError for malformed input.
func ParseFrame(src []byte) (Frame, int, error) {
	if len(src) >= 4 && bytes.Equal(src[:4], protocolHeader[:4]) {
		return Frame{}, 0, &ParseError{Offset: 0, Reason: "peer rejected protocol version"}
	}
	if len(src) < FrameHeaderSize {
		return Frame{}, 0, ErrIncompleteFrame
	}
	typ := FrameType(src[0])
	if !knownType(typ) {
		return Frame{}, 0, &ParseError{Offset: 0, Reason: fmt.Sprintf("unknown frame type %d", src[0])}
	}
	total, _ := PeekFrameSize(src)
	if len(src) < total {
		return Frame{}, 0, ErrIncompleteFrame
	}
	if src[total-1] != FrameEnd {
		return Frame{}, 0, &ParseError{Offset: total - 1, Reason: fmt.Sprintf("bad frame-end octet 0x%02x", src[total-1])}
	}
	payload := make([]byte, total-FrameOverhead)
	copy(payload, src[FrameHeaderSize:total-1])
	return Frame{
		Type:    typ,
		Channel: binary.BigEndian.Uint16(src[1:3]),
		Payload: payload,
	}, total, nil
}
