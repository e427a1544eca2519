// File: facade/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"context"

	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/internal/channels"
	"github.com/momentics/hioload-amqp/internal/promise"
)

// Publishing addresses one basic.publish.
type Publishing = protocol.Publish

// Channel is an open channel of a Connection.
type Channel struct {
	ch *channels.Channel
}

// Completion reports when an asynchronous operation finished.
type Completion struct {
	p *promise.Promise
}

// Done is closed once the operation finished.
func (c Completion) Done() <-chan struct{} { return c.p.Done() }

// Err returns the outcome; nil while pending or on success.
func (c Completion) Err() error { return c.p.Err() }

// Wait blocks until the operation finished or ctx ends.
func (c Completion) Wait(ctx context.Context) error { return c.p.Wait(ctx) }

// ID returns the channel number.
func (c *Channel) ID() uint16 { return c.ch.ID() }

// State returns the channel lifecycle state.
func (c *Channel) State() channels.State { return c.ch.State() }

// Flow reports whether the broker currently accepts content on the channel.
func (c *Channel) Flow() bool { return c.ch.Flow() }

// PublishAsync queues a message. The completion fires once its last frame
// has been written to the socket.
func (c *Channel) PublishAsync(pub Publishing, body []byte) Completion {
	return Completion{p: c.ch.Publish(pub, body)}
}

// Publish queues a message and waits until it is on the wire.
func (c *Channel) Publish(ctx context.Context, pub Publishing, body []byte) error {
	return c.PublishAsync(pub, body).Wait(ctx)
}

// Cancel stops a consumer and waits for the broker's confirmation.
func (c *Channel) Cancel(ctx context.Context, consumerTag string) error {
	p, err := c.ch.Cancel(consumerTag)
	if err != nil {
		return err
	}
	return p.Wait(ctx)
}

// Close closes the channel and waits for the broker's confirmation.
func (c *Channel) Close(ctx context.Context, replyCode uint16, replyText string) error {
	p, err := c.ch.Close(replyCode, replyText)
	if err != nil {
		return err
	}
	return p.Wait(ctx)
}

// OnDelivery installs fn for frames the engine does not consume itself.
// fn runs on the I/O loop and must not block or close the connection.
func (c *Channel) OnDelivery(fn func(protocol.Frame)) {
	c.ch.OnFrame(fn)
}
