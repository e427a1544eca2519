// File: internal/concurrency/goexecutor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"context"
	"sync/atomic"

	"github.com/momentics/hioload-amqp/api"
	"github.com/rs/zerolog"
)

// GoExecutor runs every task on its own goroutine.
type GoExecutor struct {
	log    zerolog.Logger
	seq    atomic.Int64
	closed atomic.Bool
}

var _ api.Executor = (*GoExecutor)(nil)

func NewGoExecutor(log zerolog.Logger) *GoExecutor {
	return &GoExecutor{log: log}
}

func (g *GoExecutor) Submit(task api.TaskFunc) error {
	if task == nil {
		return api.ErrInvalidArgument
	}
	if g.closed.Load() {
		return api.ErrExecutorClosed
	}
	id := int(g.seq.Add(1))
	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.log.Error().Int("task", id).Interface("panic", r).Msg("task panicked")
			}
		}()
		task(withWorker(context.Background(), g, id))
	}()
	return nil
}

// Close rejects later submissions. Running tasks are not awaited.
func (g *GoExecutor) Close(context.Context) error {
	g.closed.Store(true)
	return nil
}
