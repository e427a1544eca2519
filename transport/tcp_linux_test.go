//go:build linux
// +build linux

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-amqp/api"
)

func TestTCPStreamNonBlocking(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := Dial(ctx, ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	peer := <-accepted
	defer peer.Close()

	buf := make([]byte, 16)
	if _, err := s.Read(buf); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("empty socket should report would-block, got %v", err)
	}
	if s.RawFD() == 0 {
		t.Fatal("raw descriptor expected")
	}

	if _, err := s.Write([]byte("AMQP\x00\x00\x09\x01")); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 8)
	if _, err := io.ReadFull(peer, got); err != nil || string(got[:4]) != "AMQP" {
		t.Fatalf("peer read %q, %v", got, err)
	}

	if _, err := peer.Write([]byte("hi")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for {
		n, err := s.Read(buf)
		if err == nil {
			if string(buf[:n]) != "hi" {
				t.Fatalf("read %q", buf[:n])
			}
			break
		}
		if !errors.Is(err, api.ErrWouldBlock) || time.Now().After(deadline) {
			t.Fatalf("read: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	peer.Close()
	deadline = time.Now().Add(time.Second)
	for {
		_, err := s.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if !errors.Is(err, api.ErrWouldBlock) || time.Now().After(deadline) {
			t.Fatalf("expected EOF, got %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}
