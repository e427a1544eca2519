package facade_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/control"
	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/facade"
	"github.com/momentics/hioload-amqp/fake"
	"github.com/momentics/hioload-amqp/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}

type env struct {
	conn     *facade.Connection
	stream   *fake.Stream
	broker   *fake.Broker
	registry *prometheus.Registry
}

func testOptions() control.Options {
	opts := control.DefaultOptions()
	opts.FrameMax = 4096
	opts.Heartbeat = 0
	opts.Workers = 2
	return opts
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{stream: fake.NewStream(), registry: prometheus.NewRegistry()}
	e.broker = fake.NewBroker(e.stream, protocol.Tune{ChannelMax: 16, FrameMax: 4096, Heartbeat: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var r *fake.Reactor
	conn, err := facade.NewConnection(ctx, e.stream, testOptions(),
		facade.WithReactorBuilder(fake.Builder(&r)),
		facade.WithMetrics(control.NewMetrics(control.WithRegistry(e.registry))),
	)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	e.conn = conn
	t.Cleanup(func() {
		if !conn.Status().Terminal() {
			conn.Shutdown()
		}
	})
	return e
}

func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestConnectionLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := uuid.Parse(e.conn.ID()); err != nil {
		t.Fatalf("connection id %q: %v", e.conn.ID(), err)
	}
	if e.conn.Status() != api.StateConnected {
		t.Fatalf("status = %s", e.conn.Status())
	}
	if tuning := e.conn.Tuning(); tuning.FrameMax != 4096 || tuning.ChannelMax != 16 {
		t.Fatalf("tuning = %+v", tuning)
	}

	ch, err := e.conn.OpenChannel(ctx)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	if ch.ID() != 1 {
		t.Fatalf("channel id = %d", ch.ID())
	}
	body := make([]byte, 10000)
	if err := ch.Publish(ctx, facade.Publishing{Exchange: "amq.direct", RoutingKey: "k"}, body); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	var received int
	for _, f := range e.broker.Frames() {
		if f.Type == protocol.FrameBody && f.Channel == 1 {
			received += len(f.Payload)
		}
	}
	if received != len(body) {
		t.Fatalf("broker received %d body bytes", received)
	}
	if err := ch.Close(ctx, protocol.ReplySuccess, "done"); err != nil {
		t.Fatalf("channel Close: %v", err)
	}

	dump := e.conn.Debug()
	if dump["conn_id"] != e.conn.ID() || dump["status"] != "connected" {
		t.Fatalf("debug dump = %v", dump)
	}

	if err := e.conn.Close(ctx, protocol.ReplySuccess, "bye"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if e.conn.Status() != api.StateClosed {
		t.Fatalf("status after close = %s", e.conn.Status())
	}
	if !e.stream.Closed() {
		t.Fatal("stream not closed")
	}
	if n := counter(t, e.registry, "hioload_amqp_connection_frames_sent_total"); n < 8 {
		t.Fatalf("frames_sent_total = %v", n)
	}
	if n := counter(t, e.registry, "hioload_amqp_connection_internal_commands_total"); n < 1 {
		t.Fatalf("internal_commands_total = %v", n)
	}
}

func TestBrokerClosesConnection(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	e.broker.Send(protocol.ConnectionClose(protocol.Close{ReplyCode: protocol.ReplyConnectionForced, ReplyText: "maintenance"}))
	if err := e.conn.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	var amqpErr *protocol.AMQPError
	if !errors.As(e.conn.Err(), &amqpErr) || amqpErr.Code != protocol.ReplyConnectionForced {
		t.Fatalf("connection error = %v", e.conn.Err())
	}
	methods := e.broker.Methods()
	if last := methods[len(methods)-1]; !last.Is(protocol.ClassConnection, protocol.MethodConnectionCloseOk) {
		t.Fatalf("last client method = %s", last)
	}
	if err := e.conn.Close(ctx, protocol.ReplySuccess, "bye"); !errors.As(err, &amqpErr) {
		t.Fatalf("Close after broker close = %v", err)
	}
}

func TestOpenChannelOnClosedConnection(t *testing.T) {
	e := newEnv(t)
	if err := e.conn.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := e.conn.OpenChannel(ctx); !errors.Is(err, api.ErrInvalidConnectionState) {
		t.Fatalf("OpenChannel = %v", err)
	}
}

func TestConnectTimesOutOnSilentBroker(t *testing.T) {
	stream := fake.NewStream()
	broker := fake.NewBroker(stream, protocol.Tune{FrameMax: 4096})
	broker.Silence(true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var r *fake.Reactor
	_, err := facade.NewConnection(ctx, stream, testOptions(), facade.WithReactorBuilder(fake.Builder(&r)))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("NewConnection = %v", err)
	}
	if !stream.Closed() || !r.Closed() {
		t.Fatal("stream and reactor must be released")
	}
}

func TestCloseGivesUpWithoutCloseOk(t *testing.T) {
	e := newEnv(t)
	e.broker.Silence(true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := e.conn.Close(ctx, protocol.ReplySuccess, "bye"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close = %v", err)
	}
	if e.conn.Status() != api.StateError {
		t.Fatalf("status = %s", e.conn.Status())
	}
	select {
	case <-e.conn.Done():
	case <-time.After(time.Second):
		t.Fatal("io loop still running")
	}
}

func TestDialRejectsInvalidOptions(t *testing.T) {
	opts := control.DefaultOptions()
	opts.FrameMax = 100
	if _, err := facade.Dial(context.Background(), opts); err == nil {
		t.Fatal("Dial accepted frame_max 100")
	}
}
