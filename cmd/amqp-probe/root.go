// File: cmd/amqp-probe/root.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/momentics/hioload-amqp/control"
	"github.com/momentics/hioload-amqp/facade"
	"github.com/momentics/hioload-amqp/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// probe holds the global flags and what they resolve to.
type probe struct {
	configPath  string
	address     string
	vhost       string
	username    string
	password    string
	heartbeat   uint16
	frameMax    uint32
	workers     int
	metricsAddr string

	opts     control.Options
	registry *prometheus.Registry
	metrics  *control.Metrics
	server   *http.Server
}

func (p *probe) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "amqp-probe",
		Short: "Exercise an AMQP 0-9-1 broker connection",
		Long: `amqp-probe opens a connection with the hioload-amqp engine.

Options come from defaults, then the --config TOML file, then flags.

Examples:
  amqp-probe connect --address 127.0.0.1:5672 --hold 10s
  amqp-probe publish --config probe.toml --count 1000 --rate 200`,
		SilenceUsage:       true,
		PersistentPreRunE:  p.setup,
		PersistentPostRunE: p.teardown,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&p.configPath, "config", "", "TOML options file")
	flags.StringVar(&p.address, "address", "", "broker address host:port")
	flags.StringVar(&p.vhost, "vhost", "", "virtual host")
	flags.StringVar(&p.username, "username", "", "user name")
	flags.StringVar(&p.password, "password", "", "password")
	flags.Uint16Var(&p.heartbeat, "heartbeat", 0, "requested heartbeat in seconds, 0 disables")
	flags.Uint32Var(&p.frameMax, "frame-max", 0, "requested frame_max in bytes")
	flags.IntVar(&p.workers, "workers", 0, "executor workers, 0 means one per CPU")
	flags.StringVar(&p.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(p.connectCommand(), p.publishCommand())
	return root
}

// resolveOptions layers the config file and the flags set on cmd over the
// defaults.
func (p *probe) resolveOptions(cmd *cobra.Command) (control.Options, error) {
	opts := control.DefaultOptions()
	if p.configPath != "" {
		loaded, err := control.LoadOptionsFile(p.configPath)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}
	changed := cmd.Root().PersistentFlags().Changed
	if changed("address") {
		opts.Address = p.address
	}
	if changed("vhost") {
		opts.VHost = p.vhost
	}
	if changed("username") {
		opts.Username = p.username
	}
	if changed("password") {
		opts.Password = p.password
	}
	if changed("heartbeat") {
		opts.Heartbeat = p.heartbeat
	}
	if changed("frame-max") {
		opts.FrameMax = p.frameMax
	}
	if changed("workers") {
		opts.Workers = p.workers
	}
	return opts, opts.Validate()
}

func (p *probe) setup(cmd *cobra.Command, _ []string) error {
	logging.ConfigureRuntime()
	opts, err := p.resolveOptions(cmd)
	if err != nil {
		return fmt.Errorf("options: %w", err)
	}
	p.opts = opts
	p.registry = prometheus.NewRegistry()
	p.metrics = control.NewMetrics(
		control.WithNamespace(opts.MetricsNamespace),
		control.WithRegistry(p.registry),
	)
	if p.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
		p.server = &http.Server{Addr: p.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		log := logging.For("probe")
		go func() {
			if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", p.metricsAddr).Msg("metrics server failed")
			}
		}()
	}
	return nil
}

func (p *probe) teardown(*cobra.Command, []string) error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}

func (p *probe) dial(ctx context.Context) (*facade.Connection, error) {
	return facade.Dial(ctx, p.opts,
		facade.WithMetrics(p.metrics),
		facade.WithLogger(logging.For("probe")),
	)
}
