package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/momentics/hioload-amqp/api"
	"github.com/momentics/hioload-amqp/control"
	"github.com/momentics/hioload-amqp/core/protocol"
	"github.com/momentics/hioload-amqp/internal/concurrency"
	"github.com/momentics/hioload-amqp/internal/frames"
	"github.com/momentics/hioload-amqp/internal/rpc"
	"github.com/momentics/hioload-amqp/internal/status"
	"github.com/rs/zerolog"
)

type nopWaker struct{}

func (nopWaker) Wake() {}

type harness struct {
	status *status.Status
	config *control.Configuration
	frames *frames.Frames
	table  *Channels
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := status.New()
	cfg := control.NewConfiguration()
	fr := frames.New(nopWaker{})
	r := rpc.New(concurrency.NewGoExecutor(zerolog.Nop()), nopWaker{}, zerolog.Nop(), nil)
	table := New(st, cfg, fr, r.Handle(), Handshake{
		Requested: protocol.Tune{ChannelMax: 16, FrameMax: 65536, Heartbeat: 60},
		Username:  "guest",
		Password:  "guest",
		VHost:     "/",
		Locale:    "en_US",
	}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, table)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &harness{status: st, config: cfg, frames: fr, table: table}
}

// drain pops every queued frame.
func (h *harness) drain() []protocol.Frame {
	var out []protocol.Frame
	for {
		e, ok := h.frames.Pop(true)
		if !ok {
			return out
		}
		if e.Promise != nil {
			e.Promise.Resolve(nil)
		}
		out = append(out, e.Frame)
	}
}

func methodOf(t *testing.T, f protocol.Frame) protocol.Method {
	t.Helper()
	m, err := protocol.ParseMethod(f.Payload)
	if err != nil {
		t.Fatalf("parse method: %v", err)
	}
	return m
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.table.Start()
	if err := h.table.HandleFrame(protocol.ConnectionStart("PLAIN", "en_US")); err != nil {
		t.Fatal(err)
	}
	tune := protocol.ConnectionTune(protocol.Tune{ChannelMax: 8, FrameMax: 4096, Heartbeat: 0})
	if err := h.table.HandleFrame(tune); err != nil {
		t.Fatal(err)
	}
	if err := h.table.HandleFrame(protocol.MethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionOpenOk, []byte{0})); err != nil {
		t.Fatal(err)
	}
}

func TestHandshake(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	out := h.drain()
	if len(out) != 4 {
		t.Fatalf("expected header, start-ok, tune-ok, open; got %d frames", len(out))
	}
	if out[0].Type != protocol.FrameProtocolHeader {
		t.Fatalf("first frame should be the protocol header, got %v", out[0])
	}
	wants := []uint16{protocol.MethodConnectionStartOk, protocol.MethodConnectionTuneOk, protocol.MethodConnectionOpen}
	for i, want := range wants {
		if m := methodOf(t, out[i+1]); !m.Is(protocol.ClassConnection, want) {
			t.Fatalf("frame %d: got %s", i+1, m)
		}
	}
	tuned := h.config.Snapshot()
	if tuned.ChannelMax != 8 || tuned.FrameMax != 4096 || tuned.Heartbeat != 60 {
		t.Fatalf("negotiated %+v", tuned)
	}
	if !h.status.Connected() {
		t.Fatalf("status = %v", h.status.State())
	}
	if err := h.status.ConnectResolver().Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestOpenPublishClose(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.drain()

	ch, err := h.table.Open()
	if err != nil {
		t.Fatal(err)
	}
	if ch.ID() != 1 {
		t.Fatalf("first channel id = %d", ch.ID())
	}
	_ = h.table.HandleFrame(protocol.MethodFrame(1, protocol.ClassChannel, protocol.MethodChannelOpenOk, []byte{0, 0, 0, 0}))
	if err := ch.Opened().Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	body := make([]byte, 5000)
	done := ch.Publish(protocol.Publish{RoutingKey: "q"}, body)
	out := h.drain()
	// open, publish, header, two bodies at frame_max 4096
	if len(out) != 5 {
		t.Fatalf("got %d frames", len(out))
	}
	if !done.Resolved() || done.Err() != nil {
		t.Fatal("publish promise should resolve with the last frame")
	}

	closed, err := ch.Close(protocol.ReplySuccess, "bye")
	if err != nil {
		t.Fatal(err)
	}
	_ = h.table.HandleFrame(protocol.MethodFrame(1, protocol.ClassChannel, protocol.MethodChannelCloseOk, nil))
	if err := closed.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.table.Get(1); ok {
		t.Fatal("closed channel must leave the table")
	}
}

func TestPublishRequiresOpenChannel(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ch, _ := h.table.Open()
	p := ch.Publish(protocol.Publish{}, []byte("x"))
	if !errors.Is(p.Err(), api.ErrInvalidConnectionState) {
		t.Fatalf("got %v", p.Err())
	}
}

func TestBrokerChannelCloseRemovesChannel(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ch, _ := h.table.Open()
	_ = h.table.HandleFrame(protocol.MethodFrame(1, protocol.ClassChannel, protocol.MethodChannelOpenOk, []byte{0, 0, 0, 0}))
	h.drain()

	closeFrame := protocol.ChannelClose(1, protocol.Close{ReplyCode: protocol.ReplyNotFound, ReplyText: "no queue"})
	if err := h.table.HandleFrame(closeFrame); err != nil {
		t.Fatal(err)
	}
	out := h.drain()
	if len(out) != 1 || !methodOf(t, out[0]).Is(protocol.ClassChannel, protocol.MethodChannelCloseOk) {
		t.Fatalf("expected close-ok, got %v", out)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := ch.Closed().Wait(ctx)
	var amqpErr *protocol.AMQPError
	if !errors.As(err, &amqpErr) || amqpErr.Code != protocol.ReplyNotFound {
		t.Fatalf("channel should end with the broker's error, got %v", err)
	}
}

func TestBrokerConnectionClose(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.drain()

	closeFrame := protocol.ConnectionClose(protocol.Close{ReplyCode: protocol.ReplyConnectionForced, ReplyText: "shutdown"})
	if err := h.table.HandleFrame(closeFrame); err != nil {
		t.Fatal(err)
	}
	if !h.status.Closing() {
		t.Fatalf("status = %v", h.status.State())
	}
	deadline := time.Now().Add(2 * time.Second)
	for !h.status.Errored() && time.Now().Before(deadline) {
		h.drain()
		time.Sleep(time.Millisecond)
	}
	var amqpErr *protocol.AMQPError
	if !errors.As(h.status.Err(), &amqpErr) || amqpErr.Code != protocol.ReplyConnectionForced {
		t.Fatalf("status err = %v", h.status.Err())
	}
}

func TestConnectionErrorFailsEverything(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.drain()
	ch, _ := h.table.Open()
	queued := h.frames.Send(protocol.Heartbeat())

	boom := errors.New("socket reset")
	h.table.SetConnectionError(boom)
	if !errors.Is(ch.Opened().Err(), boom) || !errors.Is(queued.Err(), boom) {
		t.Fatal("pending promises must fail with the connection error")
	}
	if ch.State() != StateError || !errors.Is(h.status.Err(), boom) {
		t.Fatalf("channel state %v, status err %v", ch.State(), h.status.Err())
	}
}

func TestBlockedAndFlow(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ch, _ := h.table.Open()
	h.drain()

	var w []byte
	w = append(w, 0, 4)
	w = append(w, "busy"...)
	blocked := protocol.MethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionBlocked, w)
	_ = h.table.HandleFrame(blocked)
	if !h.status.Blocked() || h.status.BlockedReason() != "busy" {
		t.Fatal("blocked not recorded")
	}
	_ = h.table.HandleFrame(protocol.MethodFrame(0, protocol.ClassConnection, protocol.MethodConnectionUnblocked, nil))
	if h.status.Blocked() {
		t.Fatal("unblocked not recorded")
	}

	_ = h.table.HandleFrame(protocol.ChannelFlow(ch.ID(), false))
	if h.table.Flow() {
		t.Fatal("flow should be off")
	}
	out := h.drain()
	if len(out) != 1 || !methodOf(t, out[0]).Is(protocol.ClassChannel, protocol.MethodChannelFlowOk) {
		t.Fatalf("expected flow-ok, got %v", out)
	}
}

func TestCancelConsumer(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ch, _ := h.table.Open()
	_ = h.table.HandleFrame(protocol.MethodFrame(1, protocol.ClassChannel, protocol.MethodChannelOpenOk, []byte{0, 0, 0, 0}))
	h.drain()

	p, err := h.table.CancelConsumer(ch.ID(), "ctag-1")
	if err != nil {
		t.Fatal(err)
	}
	_ = h.table.HandleFrame(protocol.BasicCancelOk(ch.ID(), "ctag-1"))
	if !p.Resolved() || p.Err() != nil {
		t.Fatal("cancel-ok should resolve the promise")
	}
	if _, err := h.table.CancelConsumer(42, "x"); !errors.Is(err, api.ErrChannelNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestChannelIDsExhaust(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	for i := 0; i < 8; i++ {
		if _, err := h.table.Open(); err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
	}
	if _, err := h.table.Open(); err == nil {
		t.Fatal("channel_max should be enforced")
	}
	h.table.RemoveChannel(3, nil)
	ch, err := h.table.Open()
	if err != nil || ch.ID() != 3 {
		t.Fatalf("freed id should be reused, got %v %v", ch, err)
	}
}

func TestDeliveryHook(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	ch, _ := h.table.Open()
	var got []protocol.Frame
	ch.OnFrame(func(f protocol.Frame) { got = append(got, f) })
	body := protocol.Frame{Type: protocol.FrameBody, Channel: ch.ID(), Payload: []byte("payload")}
	if err := h.table.HandleFrame(body); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || string(got[0].Payload) != "payload" {
		t.Fatalf("hook got %v", got)
	}
}
