// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus counters for the connection engine. A nil *Metrics is valid
// and records nothing.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "hioload_amqp").
	Namespace string

	// Subsystem is the metrics subsystem (default: "connection").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the collectors.
type MetricsOption func(*MetricsConfig)

func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) { c.Namespace = namespace }
}

func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) { c.ConstLabels = labels }
}

func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) { c.Registry = registry }
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "hioload_amqp",
		Subsystem: "connection",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors for one or more connections.
type Metrics struct {
	bytesWritten   prometheus.Counter
	bytesRead      prometheus.Counter
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	heartbeats     prometheus.Counter
	criticalErrors prometheus.Counter
	commands       *prometheus.CounterVec
}

// NewMetrics registers the collectors. Registering twice on the same
// registry panics, as with promauto.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	return &Metrics{
		bytesWritten:   counter("bytes_written_total", "Bytes accepted by the transport"),
		bytesRead:      counter("bytes_read_total", "Bytes read from the transport"),
		framesSent:     counter("frames_sent_total", "Frames serialized into the send buffer"),
		framesReceived: counter("frames_received_total", "Frames parsed from the receive buffer"),
		heartbeats:     counter("heartbeats_sent_total", "Heartbeat frames injected"),
		criticalErrors: counter("critical_errors_total", "Connections torn down by a fatal error"),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "internal_commands_total",
			Help:        "Internal commands executed, by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
	}
}

func (m *Metrics) BytesWritten(n int) {
	if m != nil && n > 0 {
		m.bytesWritten.Add(float64(n))
	}
}

func (m *Metrics) BytesRead(n int) {
	if m != nil && n > 0 {
		m.bytesRead.Add(float64(n))
	}
}

func (m *Metrics) FrameSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

func (m *Metrics) FrameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) HeartbeatSent() {
	if m != nil {
		m.heartbeats.Inc()
	}
}

func (m *Metrics) CriticalError() {
	if m != nil {
		m.criticalErrors.Inc()
	}
}

func (m *Metrics) Command(kind string) {
	if m != nil {
		m.commands.WithLabelValues(kind).Inc()
	}
}
