// File: internal/concurrency/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DefaultExecutor runs a fixed pool of worker goroutines pulling from one
// shared FIFO. Shutdown enqueues one stop signal per worker and joins every
// worker except the caller's own.

package concurrency

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-amqp/api"
	"github.com/rs/zerolog"
)

// DefaultExecutor is the fixed-size worker pool.
type DefaultExecutor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue // of api.TaskFunc; nil is a stop signal
	workers []*worker
	closed  bool
	log     zerolog.Logger

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	panics         atomic.Int64
}

type worker struct {
	id   int
	done chan struct{}
}

var _ api.Executor = (*DefaultExecutor)(nil)

// NewDefaultExecutor starts workers goroutines; workers <= 0 means runtime.NumCPU().
func NewDefaultExecutor(workers int, log zerolog.Logger) *DefaultExecutor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	e := &DefaultExecutor{
		tasks:   queue.New(),
		workers: make([]*worker, workers),
		log:     log,
	}
	e.cond = sync.NewCond(&e.mu)
	for i := range e.workers {
		w := &worker{id: i, done: make(chan struct{})}
		e.workers[i] = w
		go e.run(w)
	}
	return e
}

// Submit enqueues task, returning ErrExecutorClosed after Close.
func (e *DefaultExecutor) Submit(task api.TaskFunc) error {
	if task == nil {
		return api.ErrInvalidArgument
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return api.ErrExecutorClosed
	}
	e.tasks.Add(task)
	e.mu.Unlock()
	e.totalTasks.Add(1)
	e.cond.Signal()
	return nil
}

// NumWorkers returns the pool size.
func (e *DefaultExecutor) NumWorkers() int {
	return len(e.workers)
}

// Close signals every worker to stop once it reaches the stop signal, then
// joins them. Called from a worker of this pool, it does not wait for that
// worker. Tasks queued before Close still run. ctx bounds the wait and
// identifies the caller.
func (e *DefaultExecutor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for range e.workers {
		e.tasks.Add(api.TaskFunc(nil))
	}
	e.mu.Unlock()
	e.cond.Broadcast()

	self := -1
	if m, ok := workerFrom(ctx); ok && m.owner == e {
		self = m.id
	}
	for _, w := range e.workers {
		if w.id == self {
			continue
		}
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stats returns basic executor metrics.
func (e *DefaultExecutor) Stats() map[string]int64 {
	total, completed := e.totalTasks.Load(), e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": completed,
		"pending_tasks":   total - completed,
		"panics":          e.panics.Load(),
		"num_workers":     int64(len(e.workers)),
	}
}

func (e *DefaultExecutor) next() api.TaskFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.tasks.Length() == 0 {
		e.cond.Wait()
	}
	return e.tasks.Remove().(api.TaskFunc)
}

func (e *DefaultExecutor) run(w *worker) {
	defer close(w.done)
	ctx := withWorker(context.Background(), e, w.id)
	for {
		task := e.next()
		if task == nil {
			return
		}
		e.execute(ctx, w, task)
	}
}

// execute runs the task, recovering from panics to keep the worker alive.
func (e *DefaultExecutor) execute(ctx context.Context, w *worker, task api.TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error().Int("worker", w.id).Interface("panic", r).Msg("task panicked")
		}
		e.completedTasks.Add(1)
	}()
	task(ctx)
}
