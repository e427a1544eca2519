// File: cmd/amqp-probe/connect.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/spf13/cobra"
)

func (p *probe) connectCommand() *cobra.Command {
	var hold time.Duration
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open a connection, keep it for --hold, then close it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			conn, err := p.dial(ctx)
			if err != nil {
				return err
			}
			tuning := conn.Tuning()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "connected to %s in %v (conn_id %s)\n", p.opts.Address, time.Since(start).Round(time.Millisecond), conn.ID())
			fmt.Fprintf(out, "channel_max=%d frame_max=%d heartbeat=%ds\n", tuning.ChannelMax, tuning.FrameMax, tuning.Heartbeat)

			select {
			case <-time.After(hold):
			case <-ctx.Done():
			case <-conn.Done():
				return fmt.Errorf("connection lost: %w", conn.Err())
			}

			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := conn.Close(closeCtx, protocol.ReplySuccess, "probe done"); err != nil {
				return fmt.Errorf("close: %w", err)
			}
			fmt.Fprintln(out, "closed")
			return nil
		},
	}
	cmd.Flags().DurationVar(&hold, "hold", 0, "how long to keep the connection open")
	return cmd
}
