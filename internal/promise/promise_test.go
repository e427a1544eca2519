package promise

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestResolveOnce(t *testing.T) {
	p := New()
	first := errors.New("first")
	if !p.Resolve(first) {
		t.Fatal("first Resolve should win")
	}
	if p.Resolve(nil) {
		t.Fatal("second Resolve must be ignored")
	}
	if !errors.Is(p.Wait(context.Background()), first) {
		t.Fatalf("unexpected result %v", p.Err())
	}
}

func TestConcurrentResolve(t *testing.T) {
	p := New()
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.Resolve(nil) {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners.Load())
	}
}

func TestWaitHonoursContext(t *testing.T) {
	p := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if p.Resolved() {
		t.Fatal("promise must stay unresolved")
	}
}
