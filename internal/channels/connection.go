// File: internal/channels/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel 0: client side of the connection handshake and the
// connection-level methods that follow it.

package channels

import (
	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/control"
	"github.com/momentics/hioload-amqp/core/protocol"
)

func (c *Channels) handleConnection(f protocol.Frame) error {
	if f.Type != protocol.FrameMethod {
		return protocol.NewAMQPError(protocol.ReplyUnexpectedFrame, "unexpected %s frame on channel 0", f.Type)
	}
	m, err := protocol.ParseMethod(f.Payload)
	if err != nil {
		return protocol.NewAMQPError(protocol.ReplySyntaxError, "channel 0: %v", err)
	}
	if m.ClassID != protocol.ClassConnection {
		return protocol.NewAMQPError(protocol.ReplyCommandInvalid, "unexpected method %s on channel 0", m)
	}

	switch m.MethodID {
	case protocol.MethodConnectionStart:
		c.log.Debug().Msg("connection.start received")
		c.frames.Push(protocol.ConnectionStartOk(protocol.StartOk{
			ClientProperties: c.hs.ClientProperties,
			Mechanism:        "PLAIN",
			Response:         protocol.PlainResponse(c.hs.Username, c.hs.Password),
			Locale:           c.hs.Locale,
		}), nil)

	case protocol.MethodConnectionTune:
		server, err := protocol.ParseTune(m.Args)
		if err != nil {
			return protocol.NewAMQPError(protocol.ReplySyntaxError, "connection.tune: %v", err)
		}
		tune := protocol.Negotiate(c.hs.Requested, server)
		if tune.FrameMax != 0 && tune.FrameMax < protocol.FrameMinSize {
			tune.FrameMax = protocol.FrameMinSize
		}
		c.config.Set(control.Tuning{ChannelMax: tune.ChannelMax, FrameMax: tune.FrameMax, Heartbeat: tune.Heartbeat})
		c.log.Debug().
			Uint16("channel_max", tune.ChannelMax).
			Uint32("frame_max", tune.FrameMax).
			Uint16("heartbeat", tune.Heartbeat).
			Msg("connection tuned")
		c.frames.Push(protocol.ConnectionTuneOk(tune), nil)
		c.frames.Push(protocol.ConnectionOpen(c.hs.VHost), nil)

	case protocol.MethodConnectionOpenOk:
		if ch, ok := c.Get(0); ok {
			ch.setState(StateConnected)
		}
		c.status.Set(api.StateConnected)

	case protocol.MethodConnectionClose:
		cl, err := protocol.ParseClose(m.Args)
		if err != nil {
			return protocol.NewAMQPError(protocol.ReplySyntaxError, "connection.close: %v", err)
		}
		var cause error
		if cl.ReplyCode != protocol.ReplySuccess {
			cause = protocol.NewAMQPError(cl.ReplyCode, "%s", cl.ReplyText)
		}
		c.log.Debug().Uint16("code", cl.ReplyCode).Str("text", cl.ReplyText).Msg("connection closed by broker")
		c.SetConnectionClosing()
		c.rpc.SendConnectionCloseOk(cause)

	case protocol.MethodConnectionCloseOk:
		c.log.Debug().Msg("connection.close-ok received")
		c.SetConnectionClosed(nil)

	case protocol.MethodConnectionBlocked:
		reason, err := protocol.ParseBlocked(m.Args)
		if err != nil {
			return protocol.NewAMQPError(protocol.ReplySyntaxError, "connection.blocked: %v", err)
		}
		c.log.Warn().Str("reason", reason).Msg("connection blocked by broker")
		c.status.SetBlocked(true, reason)

	case protocol.MethodConnectionUnblocked:
		c.log.Info().Msg("connection unblocked")
		c.status.SetBlocked(false, "")

	default:
		c.log.Debug().Stringer("method", m).Msg("unhandled connection method")
	}
	return nil
}
