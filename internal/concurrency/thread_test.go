package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestThreadHandleJoin(t *testing.T) {
	var h ThreadHandle
	boom := errors.New("boom")
	release := make(chan struct{})
	if !h.Spawn(func(ctx context.Context) error {
		<-release
		return boom
	}) {
		t.Fatal("spawn failed")
	}
	if h.Spawn(func(context.Context) error { return nil }) {
		t.Fatal("second spawn must be rejected")
	}
	close(release)
	if err := h.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestThreadHandleSelfWait(t *testing.T) {
	var h ThreadHandle
	res := make(chan error, 1)
	h.Spawn(func(ctx context.Context) error {
		if !h.IsCurrent(ctx) {
			res <- errors.New("IsCurrent should be true inside the goroutine")
			return nil
		}
		res <- h.Wait(ctx)
		return nil
	})
	select {
	case err := <-res:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("self wait deadlocked")
	}
	if h.IsCurrent(context.Background()) {
		t.Fatal("IsCurrent must be false outside")
	}
}

func TestThreadHandleWaitTimeout(t *testing.T) {
	var h ThreadHandle
	block := make(chan struct{})
	defer close(block)
	h.Spawn(func(context.Context) error { <-block; return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	var empty ThreadHandle
	if err := empty.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}
