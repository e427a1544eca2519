package concurrency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-amqp/api"
	"github.com/rs/zerolog"
)

func TestExecutorRunsTasksFIFO(t *testing.T) {
	e := NewDefaultExecutor(1, zerolog.Nop())
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		i := i
		if err := e.Submit(func(ctx context.Context) {
			defer wg.Done()
			if !WithinExecutor(ctx) {
				t.Error("task context should be marked as executor-owned")
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()
	for i, v := range order {
		if v != i {
			t.Fatalf("single worker must run in FIFO order, got %v", order)
		}
	}
	if err := e.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	e := NewDefaultExecutor(2, zerolog.Nop())
	if err := e.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(func(context.Context) {}); !errors.Is(err, api.ErrExecutorClosed) {
		t.Fatalf("expected ErrExecutorClosed, got %v", err)
	}
}

func TestCloseFromWorkerSkipsSelfJoin(t *testing.T) {
	e := NewDefaultExecutor(3, zerolog.Nop())
	result := make(chan error, 1)
	if err := e.Submit(func(ctx context.Context) {
		result <- e.Close(ctx)
	}); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("close from worker: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close from inside a worker deadlocked")
	}
	for _, w := range e.workers {
		select {
		case <-w.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("worker %d did not exit", w.id)
		}
	}
}

func TestPanicKeepsWorkerAlive(t *testing.T) {
	e := NewDefaultExecutor(1, zerolog.Nop())
	defer e.Close(context.Background())
	_ = e.Submit(func(context.Context) { panic("boom") })
	ran := make(chan struct{})
	_ = e.Submit(func(context.Context) { close(ran) })
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after a panic")
	}
	if e.Stats()["panics"] != 1 {
		t.Fatalf("stats = %v", e.Stats())
	}
}

func TestGoExecutor(t *testing.T) {
	g := NewGoExecutor(zerolog.Nop())
	done := make(chan bool, 1)
	_ = g.Submit(func(ctx context.Context) { done <- WithinExecutor(ctx) })
	if !<-done {
		t.Fatal("go executor tasks should be marked")
	}
	_ = g.Close(context.Background())
	if err := g.Submit(func(context.Context) {}); !errors.Is(err, api.ErrExecutorClosed) {
		t.Fatalf("got %v", err)
	}
}
