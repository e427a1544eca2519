package reactor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-amqp/api"
)

type fakePoller struct {
	polls atomic.Int32
	every time.Duration
}

func (p *fakePoller) PollTimeout() (time.Duration, bool) {
	p.polls.Add(1)
	return p.every, true
}

func TestTimerReactorRearms(t *testing.T) {
	s := NewSocketState()
	r := NewTimerReactor(&fakePoller{every: time.Hour}, s, time.Millisecond)
	s.SetReactor(r)
	defer r.Close()

	_ = s.HandleReadResult(api.ErrWouldBlock)
	select {
	case <-s.WaitChan():
	case <-time.After(time.Second):
		t.Fatal("re-arm never fired")
	}
	s.PollEvents()
	if !s.Readable() {
		t.Fatal("readability should be restored by the timer")
	}
}

func TestHeartbeatDriverPolls(t *testing.T) {
	p := &fakePoller{every: 2 * time.Millisecond}
	d := NewHeartbeatDriver(p)
	d.Start()
	d.Start()
	deadline := time.Now().Add(time.Second)
	for p.polls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Stop()
	if p.polls.Load() < 3 {
		t.Fatalf("driver polled %d times", p.polls.Load())
	}
	after := p.polls.Load()
	time.Sleep(10 * time.Millisecond)
	if p.polls.Load() != after {
		t.Fatal("driver kept polling after Stop")
	}
}

func TestDriverStopWithoutStart(t *testing.T) {
	d := NewHeartbeatDriver(&fakePoller{every: time.Second})
	d.Stop()
	d.Stop()
}
