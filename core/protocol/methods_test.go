package protocol_test

import (
	"testing"

	"github.com/momentics/hioload-amqp/core/protocol"
)

func TestCloseRoundTrip(t *testing.T) {
	in := protocol.Close{ReplyCode: protocol.ReplyFrameError, ReplyText: "frame too large", ClassID: 60, MethodID: 40}
	f := protocol.ConnectionClose(in)
	m, err := protocol.ParseMethod(f.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Is(protocol.ClassConnection, protocol.MethodConnectionClose) {
		t.Fatalf("unexpected method %s", m)
	}
	out, err := protocol.ParseClose(m.Args)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("close mismatch: %+v != %+v", out, in)
	}
}

func TestParseTuneShort(t *testing.T) {
	if _, err := protocol.ParseTune([]byte{0, 1, 0}); err == nil {
		t.Fatal("expected truncated tune to fail")
	}
}

func TestTuneRoundTrip(t *testing.T) {
	in := protocol.Tune{ChannelMax: 2047, FrameMax: 131072, Heartbeat: 60}
	m, _ := protocol.ParseMethod(protocol.ConnectionTuneOk(in).Payload)
	out, err := protocol.ParseTune(m.Args)
	if err != nil || out != in {
		t.Fatalf("tune mismatch: %+v %v", out, err)
	}
}

func TestNegotiate(t *testing.T) {
	cases := []struct {
		client, server, want protocol.Tune
	}{
		{protocol.Tune{}, protocol.Tune{ChannelMax: 10, FrameMax: 8192, Heartbeat: 60}, protocol.Tune{ChannelMax: 10, FrameMax: 8192, Heartbeat: 60}},
		{protocol.Tune{FrameMax: 4096, Heartbeat: 10}, protocol.Tune{FrameMax: 131072, Heartbeat: 60}, protocol.Tune{FrameMax: 4096, Heartbeat: 10}},
		{protocol.Tune{Heartbeat: 30}, protocol.Tune{Heartbeat: 0}, protocol.Tune{Heartbeat: 30}},
	}
	for _, tc := range cases {
		if got := protocol.Negotiate(tc.client, tc.server); got != tc.want {
			t.Errorf("Negotiate(%+v, %+v) = %+v, want %+v", tc.client, tc.server, got, tc.want)
		}
	}
}
