// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for the protocol module.

package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompleteFrame means more bytes are needed; not an error condition.
	ErrIncompleteFrame = errors.New("incomplete frame")

	// ErrBufferTooSmall means the destination window cannot hold the frame.
	// Callers roll back and retry once more space exists.
	ErrBufferTooSmall = errors.New("buffer too small for frame")

	// ErrInvalidFrame reports a frame that cannot be encoded at all.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrShortMethod reports method arguments truncated before a field.
	ErrShortMethod = errors.New("method arguments truncated")
)

// ParseError is a fatal inbound framing error.
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("frame parse error at offset %d: %s", e.Offset, e.Reason)
}

// AMQPError is a hard protocol error carrying a reply code.
type AMQPError struct {
	Code uint16
	Text string
}

func (e *AMQPError) Error() string {
	return fmt.Sprintf("amqp error %d: %s", e.Code, e.Text)
}

// NewAMQPError builds an AMQPError.
func NewAMQPError(code uint16, format string, args ...any) *AMQPError {
	return &AMQPError{Code: code, Text: fmt.Sprintf(format, args...)}
}

// IsIncomplete reports whether err only signals missing bytes.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncompleteFrame)
}
