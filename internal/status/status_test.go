package status

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/momentics/hioload-amqp/api"
)

func TestMonotonicTransitions(t *testing.T) {
	cases := []struct {
		name  string
		steps []api.ConnectionState
		want  api.ConnectionState
	}{
		{"forward", []api.ConnectionState{api.StateConnecting, api.StateConnected, api.StateClosing, api.StateClosed}, api.StateClosed},
		{"skip ahead", []api.ConnectionState{api.StateConnected}, api.StateConnected},
		{"no backward", []api.ConnectionState{api.StateClosing, api.StateConnected}, api.StateClosing},
		{"closed absorbs", []api.ConnectionState{api.StateClosed, api.StateConnecting}, api.StateClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			for _, st := range tc.steps {
				s.Set(st)
			}
			if got := s.State(); got != tc.want {
				t.Fatalf("state = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestErrorIsTerminal(t *testing.T) {
	s := New()
	s.Set(api.StateConnected)
	boom := errors.New("boom")
	if !s.SetError(boom) {
		t.Fatal("first error should apply")
	}
	if s.SetError(errors.New("other")) || s.Set(api.StateClosed) {
		t.Fatal("error state must absorb later transitions")
	}
	if !s.Errored() || !errors.Is(s.Err(), boom) {
		t.Fatalf("state=%v err=%v", s.State(), s.Err())
	}
}

func TestConnectResolver(t *testing.T) {
	s := New()
	s.Set(api.StateConnecting)
	s.Set(api.StateConnected)
	if err := s.ConnectResolver().Wait(context.Background()); err != nil {
		t.Fatalf("connect resolver: %v", err)
	}

	failed := New()
	boom := errors.New("handshake failed")
	failed.SetError(boom)
	if err := failed.ConnectResolver().Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestBlocked(t *testing.T) {
	s := New()
	s.SetBlocked(true, "low on memory")
	if !s.Blocked() || s.BlockedReason() != "low on memory" {
		t.Fatal("blocked flag not recorded")
	}
	s.SetBlocked(false, "")
	if s.Blocked() || s.BlockedReason() != "" {
		t.Fatal("unblocked flag not recorded")
	}
}

func TestConcurrentSetters(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				s.Set(api.StateConnected)
			case 1:
				s.Set(api.StateClosing)
			default:
				_ = s.Blocked()
			}
		}(i)
	}
	wg.Wait()
	if s.State() != api.StateClosing {
		t.Fatalf("state = %v, want Closing", s.State())
	}
}
