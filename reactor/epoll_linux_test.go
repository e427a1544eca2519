//go:build linux
// +build linux

package reactor

import (
	"testing"
	"time"

	"github.com/momentics/hioload-amqp/api"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestEpollReportsReadable(t *testing.T) {
	local, peer := socketPair(t)
	s := NewSocketState()
	r, err := newEpollReactor(local, &fakePoller{every: time.Hour}, s, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	// drain the initial writable edge
	deadline := time.After(time.Second)
	select {
	case <-s.WaitChan():
	case <-deadline:
		t.Fatal("no initial event")
	}
	s.PollEvents()
	_ = s.HandleReadResult(api.ErrWouldBlock)
	if s.Readable() {
		t.Fatal("readability should be cleared")
	}

	if _, err := unix.Write(peer, []byte("AMQP")); err != nil {
		t.Fatal(err)
	}
	for {
		select {
		case <-s.WaitChan():
			s.PollEvents()
			if s.Readable() {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("readable event not delivered")
		}
	}
}

func TestEpollHeartbeatTimeout(t *testing.T) {
	local, _ := socketPair(t)
	s := NewSocketState()
	p := &fakePoller{every: 2 * time.Millisecond}
	r, err := newEpollReactor(local, p, s, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.StartHeartbeat()
	deadline := time.Now().Add(time.Second)
	for p.polls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if p.polls.Load() < 3 {
		t.Fatalf("heartbeat polled %d times", p.polls.Load())
	}
	if err := r.Close(); err != nil {
		t.Fatal("second close must be a no-op")
	}
}
