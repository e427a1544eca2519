package api

import (
	"errors"
	"testing"
)

func TestErrorCodesAreNonZero(t *testing.T) {
	var zero ErrorCode
	for _, code := range []ErrorCode{ErrCodeResourceExhausted, ErrCodeInternal} {
		if code == zero {
			t.Fatalf("code %d collides with the zero value", code)
		}
	}
	if ErrCodeResourceExhausted == ErrCodeInternal {
		t.Fatal("codes must be distinct")
	}
}

func TestErrorWrapsCause(t *testing.T) {
	err := NewError(ErrCodeInternal, "internal command failed").
		WithContext("command", "close_channel").
		WithCause(ErrChannelNotFound)
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("cause lost: %v", err)
	}
	var apiErr *Error
	if !errors.As(error(err), &apiErr) || apiErr.Code != ErrCodeInternal {
		t.Fatalf("code lost: %v", err)
	}
}
