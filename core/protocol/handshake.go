// File: core/protocol/handshake.go
// Package protocol implements the client side of the AMQP connection handshake.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sequence: protocol header -> start/start-ok -> tune/tune-ok -> open/open-ok.

package protocol

// Tune carries negotiated connection limits.
type Tune struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

// StartOk carries the client's answer to connection.start.
type StartOk struct {
	ClientProperties map[string]string
	Mechanism        string
	Response         []byte
	Locale           string
}

// PlainResponse builds the SASL PLAIN response for user/password.
func PlainResponse(user, password string) []byte {
	out := make([]byte, 0, len(user)+len(password)+2)
	out = append(out, 0)
	out = append(out, user...)
	out = append(out, 0)
	return append(out, password...)
}

// ConnectionStartOk encodes connection.start-ok.
func ConnectionStartOk(s StartOk) Frame {
	var w argWriter
	w.table(s.ClientProperties)
	w.shortstr(s.Mechanism)
	w.longstr(s.Response)
	w.shortstr(s.Locale)
	return MethodFrame(0, ClassConnection, MethodConnectionStartOk, w.buf)
}

// ParseTune decodes connection.tune.
func ParseTune(args []byte) (Tune, error) {
	r := argReader{buf: args}
	t := Tune{
		ChannelMax: r.short("channel-max"),
		FrameMax:   r.long("frame-max"),
		Heartbeat:  r.short("heartbeat"),
	}
	return t, r.err
}

// ConnectionTuneOk encodes connection.tune-ok.
func ConnectionTuneOk(t Tune) Frame {
	var w argWriter
	w.short(t.ChannelMax)
	w.long(t.FrameMax)
	w.short(t.Heartbeat)
	return MethodFrame(0, ClassConnection, MethodConnectionTuneOk, w.buf)
}

// ConnectionOpen encodes connection.open for vhost.
func ConnectionOpen(vhost string) Frame {
	var w argWriter
	w.shortstr(vhost)
	w.shortstr("")
	w.octet(0)
	return MethodFrame(0, ClassConnection, MethodConnectionOpen, w.buf)
}

// ParseBlocked decodes connection.blocked's reason.
func ParseBlocked(args []byte) (string, error) {
	r := argReader{buf: args}
	reason := r.shortstr("reason")
	return reason, r.err
}

// Negotiate picks the effective limits: zero on either side means "no
// limit" and defers to the other, otherwise the smaller value wins.
func Negotiate(client, server Tune) Tune {
	return Tune{
		ChannelMax: negotiate16(client.ChannelMax, server.ChannelMax),
		FrameMax:   negotiate32(client.FrameMax, server.FrameMax),
		Heartbeat:  negotiate16(client.Heartbeat, server.Heartbeat),
	}
}

func negotiate16(a, b uint16) uint16 {
	if a == 0 || (b != 0 && b < a) {
		return b
	}
	return a
}

func negotiate32(a, b uint32) uint32 {
	if a == 0 || (b != 0 && b < a) {
		return b
	}
	return a
}

// ConnectionTune encodes connection.tune as sent by a broker.
func ConnectionTune(t Tune) Frame {
	var w argWriter
	w.short(t.ChannelMax)
	w.long(t.FrameMax)
	w.short(t.Heartbeat)
	return MethodFrame(0, ClassConnection, MethodConnectionTune, w.buf)
}

// ConnectionStart encodes a minimal connection.start as sent by a broker.
func ConnectionStart(mechanisms, locales string) Frame {
	var w argWriter
	w.octet(0)
	w.octet(9)
	w.table(nil)
	w.longstr([]byte(mechanisms))
	w.longstr([]byte(locales))
	return MethodFrame(0, ClassConnection, MethodConnectionStart, w.buf)
}
