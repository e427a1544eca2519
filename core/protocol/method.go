// File: core/protocol/method.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Minimal method payload codec: class/method header plus the AMQP field
// primitives needed by the engine's own methods.

package protocol

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Method is a decoded method frame payload.
type Method struct {
	ClassID  uint16
	MethodID uint16
	Args     []byte
}

// Is reports whether m is the given class/method pair.
func (m Method) Is(classID, methodID uint16) bool {
	return m.ClassID == classID && m.MethodID == methodID
}

func (m Method) String() string {
	return fmt.Sprintf("%d.%d", m.ClassID, m.MethodID)
}

// ParseMethod splits a method frame payload.
func ParseMethod(payload []byte) (Method, error) {
	if len(payload) < 4 {
		return Method{}, fmt.Errorf("%w: method header", ErrShortMethod)
	}
	return Method{
		ClassID:  binary.BigEndian.Uint16(payload[0:2]),
		MethodID: binary.BigEndian.Uint16(payload[2:4]),
		Args:     payload[4:],
	}, nil
}

// MethodFrame builds a method frame for channel.
func MethodFrame(channel, classID, methodID uint16, args []byte) Frame {
	payload := make([]byte, 4+len(args))
	binary.BigEndian.PutUint16(payload[0:2], classID)
	binary.BigEndian.PutUint16(payload[2:4], methodID)
	copy(payload[4:], args)
	return Frame{Type: FrameMethod, Channel: channel, Payload: payload}
}

// argWriter appends AMQP primitives.
type argWriter struct {
	buf []byte
}

func (w *argWriter) octet(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *argWriter) short(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *argWriter) long(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *argWriter) longlong(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *argWriter) shortstr(s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	w.octet(uint8(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *argWriter) longstr(b []byte) {
	w.long(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// table writes a field table of string values, keys sorted for stable output.
func (w *argWriter) table(fields map[string]string) {
	var t argWriter
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.shortstr(k)
		t.octet('S')
		t.longstr([]byte(fields[k]))
	}
	w.longstr(t.buf)
}

// argReader consumes AMQP primitives, latching the first error.
type argReader struct {
	buf []byte
	off int
	err error
}

func (r *argReader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: %s", ErrShortMethod, what)
		return false
	}
	return true
}

func (r *argReader) octet(what string) uint8 {
	if !r.need(1, what) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *argReader) short(what string) uint16 {
	if !r.need(2, what) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *argReader) long(what string) uint32 {
	if !r.need(4, what) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *argReader) shortstr(what string) string {
	n := int(r.octet(what))
	if !r.need(n, what) {
		return ""
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s
}
