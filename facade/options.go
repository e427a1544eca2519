// File: facade/options.go
// Package facade defines functional options for Connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/control"
	"github.com/momentics/hioload-amqp/reactor"
	"github.com/rs/zerolog"
)

// Option customizes connection construction.
type Option func(*settings)

type settings struct {
	executor api.Executor
	builder  reactor.Builder
	log      *zerolog.Logger
	metrics  *control.Metrics
}

// WithExecutor runs internal actions on e instead of a private pool. The
// caller keeps ownership of e.
func WithExecutor(e api.Executor) Option {
	return func(s *settings) {
		s.executor = e
	}
}

// WithReactorBuilder overrides how the socket reactor is created.
func WithReactorBuilder(b reactor.Builder) Option {
	return func(s *settings) {
		s.builder = b
	}
}

// WithLogger sets the base logger; a conn_id field is added to it.
func WithLogger(log zerolog.Logger) Option {
	return func(s *settings) {
		s.log = &log
	}
}

// WithMetrics records connection counters into m.
func WithMetrics(m *control.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}
