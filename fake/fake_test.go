package fake

import (
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/reactor"
)

type nopPoller struct{}

func (nopPoller) PollTimeout() (d time.Duration, ok bool) { return 0, false }

func TestStreamScripting(t *testing.T) {
	s := NewStream()
	buf := make([]byte, 8)
	if _, err := s.Read(buf); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("empty read = %v", err)
	}
	s.Feed([]byte("abc"))
	s.ZeroReads(1)
	if n, err := s.Read(buf); n != 0 || err != nil {
		t.Fatalf("zero read = %d, %v", n, err)
	}
	if n, _ := s.Read(buf); n != 3 || string(buf[:n]) != "abc" {
		t.Fatalf("read %q", buf[:n])
	}

	s.SetWriteChunk(2)
	if n, _ := s.Write([]byte("hello")); n != 2 {
		t.Fatalf("chunked write accepted %d", n)
	}
	s.AllowWrites(1)
	s.Write([]byte("llo"))
	if _, err := s.Write([]byte("o")); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("write past budget = %v", err)
	}
	if got := string(s.Written()); got != "hell" {
		t.Fatalf("written %q", got)
	}
}

func TestReactorRearmsOnReadiness(t *testing.T) {
	s := NewStream()
	state := reactor.NewSocketState()
	var r *Reactor
	if _, err := Builder(&r).Build(s, nopPoller{}, state); err != nil {
		t.Fatal(err)
	}
	state.HandleReadResult(api.ErrWouldBlock)
	state.PollEvents()
	if state.Readable() {
		t.Fatal("readable without data")
	}
	s.Feed([]byte{1})
	state.PollEvents()
	if !state.Readable() || r.ReadRearms() != 1 {
		t.Fatalf("readable=%v rearms=%d", state.Readable(), r.ReadRearms())
	}
}

func TestBrokerHandshakeReplies(t *testing.T) {
	s := NewStream()
	b := NewBroker(s, protocol.Tune{FrameMax: 4096})
	s.Write(amqpHeader)
	buf := make([]byte, 512)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	f, _, err := protocol.ParseFrame(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	m, _ := protocol.ParseMethod(f.Payload)
	if !m.Is(protocol.ClassConnection, protocol.MethodConnectionStart) || b.Malformed() {
		t.Fatalf("first broker method = %s", m)
	}
}
