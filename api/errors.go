// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-amqp.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrWouldBlock             = errors.New("operation would block")
	ErrTransportClosed        = errors.New("transport is closed")
	ErrExecutorClosed         = errors.New("executor is closed")
	ErrInvalidConnectionState = errors.New("invalid connection state")
	ErrConnectionClosed       = errors.New("connection closed")
	ErrChannelNotFound        = errors.New("channel not found")
	ErrFrameTooLarge          = errors.New("frame exceeds negotiated frame_max")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrNotSupported           = errors.New("operation not supported")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeResourceExhausted ErrorCode = iota + 1
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}
