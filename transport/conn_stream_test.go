package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-amqp/api"
)

func TestConnStreamPolls(t *testing.T) {
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
	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	s := NewConnStream(conn)
	defer s.Close()
	peer := <-accepted
	defer peer.Close()

	buf := make([]byte, 8)
	if _, err := s.Read(buf); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("expected would-block, got %v", err)
	}
	if _, err := peer.Write([]byte("ok")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for {
		n, err := s.Read(buf)
		if err == nil {
			if string(buf[:n]) != "ok" {
				t.Fatalf("read %q", buf[:n])
			}
			break
		}
		if !errors.Is(err, api.ErrWouldBlock) || time.Now().After(deadline) {
			t.Fatalf("read: %v", err)
		}
	}
	if s.RawFD() != 0 {
		t.Fatal("conn stream exposes no descriptor")
	}
}
