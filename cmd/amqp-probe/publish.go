// File: cmd/amqp-probe/publish.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/facade"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type publishFlags struct {
	exchange   string
	routingKey string
	count      int
	rate       float64
	size       int
}

// limiter returns a limiter allowing perSecond publishes; zero or less
// means unlimited.
func limiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func (p *probe) publishCommand() *cobra.Command {
	var f publishFlags
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish --count messages at --rate per second",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conn, err := p.dial(ctx)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				conn.Close(closeCtx, protocol.ReplySuccess, "probe done")
			}()

			ch, err := conn.OpenChannel(ctx)
			if err != nil {
				return err
			}
			sent, err := publishAll(ctx, ch, limiter(f.rate), f)
			if err != nil {
				return fmt.Errorf("published %d of %d: %w", sent, f.count, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d messages of %d bytes to %q/%q\n", sent, f.size, f.exchange, f.routingKey)
			return ch.Close(ctx, protocol.ReplySuccess, "probe done")
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.exchange, "exchange", "", "exchange name, empty for the default exchange")
	flags.StringVar(&f.routingKey, "routing-key", "amqp-probe", "routing key")
	flags.IntVar(&f.count, "count", 1, "number of messages")
	flags.Float64Var(&f.rate, "rate", 0, "messages per second, 0 for unlimited")
	flags.IntVar(&f.size, "size", 64, "message body size in bytes")
	return cmd
}

// publishAll publishes f.count messages and waits until every one of them
// has been written to the socket.
func publishAll(ctx context.Context, ch *facade.Channel, lim *rate.Limiter, f publishFlags) (int, error) {
	body := bytes.Repeat([]byte{'x'}, f.size)
	pub := facade.Publishing{Exchange: f.exchange, RoutingKey: f.routingKey}
	pending := make([]facade.Completion, 0, f.count)
	for i := 0; i < f.count; i++ {
		if err := lim.Wait(ctx); err != nil {
			return i, err
		}
		pending = append(pending, ch.PublishAsync(pub, body))
	}
	for i, c := range pending {
		if err := c.Wait(ctx); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}
