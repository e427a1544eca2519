// File: internal/rpc/command.go
// Package rpc lets any goroutine request connection-level side effects that
// are carried out by one dedicated consumer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package rpc

import "fmt"

// Kind tags an internal command.
type Kind int

const (
	KindCancelConsumer Kind = iota
	KindCloseChannel
	KindCloseConnection
	KindSendConnectionCloseOk
	KindRemoveChannel
	KindSetConnectionClosing
	KindSetConnectionClosed
	KindSetConnectionError
	KindStop
)

func (k Kind) String() string {
	switch k {
	case KindCancelConsumer:
		return "cancel_consumer"
	case KindCloseChannel:
		return "close_channel"
	case KindCloseConnection:
		return "close_connection"
	case KindSendConnectionCloseOk:
		return "send_connection_close_ok"
	case KindRemoveChannel:
		return "remove_channel"
	case KindSetConnectionClosing:
		return "set_connection_closing"
	case KindSetConnectionClosed:
		return "set_connection_closed"
	case KindSetConnectionError:
		return "set_connection_error"
	case KindStop:
		return "stop"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Command carries the data one action needs. Fields unused by a kind are zero.
type Command struct {
	Kind        Kind
	Channel     uint16
	ConsumerTag string
	ReplyCode   uint16
	ReplyText   string
	ClassID     uint16
	MethodID    uint16
	Err         error
}

func (c Command) String() string {
	switch c.Kind {
	case KindCancelConsumer:
		return fmt.Sprintf("%s(channel=%d tag=%q)", c.Kind, c.Channel, c.ConsumerTag)
	case KindCloseChannel:
		return fmt.Sprintf("%s(channel=%d code=%d)", c.Kind, c.Channel, c.ReplyCode)
	case KindCloseConnection:
		return fmt.Sprintf("%s(code=%d text=%q)", c.Kind, c.ReplyCode, c.ReplyText)
	case KindRemoveChannel:
		return fmt.Sprintf("%s(channel=%d)", c.Kind, c.Channel)
	default:
		return c.Kind.String()
	}
}
