package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jpalmer/wsbridge/internal/connection"
	"github.com/jpalmer/wsbridge/internal/transport"
)

func TestObserve_ConnectionState(t *testing.T) {
	Observe(connection.Event{Kind: connection.KindConnected, Protocol: "graphql-ws"})
	if got := testutil.ToFloat64(ConnectionState); got != 1 {
		t.Errorf("ConnectionState after connect = %v, want 1", got)
	}

	Observe(connection.Event{Kind: connection.KindDisconnected, Code: 1000})
	if got := testutil.ToFloat64(ConnectionState); got != 0 {
		t.Errorf("ConnectionState after disconnect = %v, want 0", got)
	}
}

func TestObserve_FrameCounters(t *testing.T) {
	before := testutil.ToFloat64(FramesReceivedTotal.WithLabelValues("text"))
	bytesBefore := testutil.ToFloat64(FrameBytesReceivedTotal.WithLabelValues("text"))

	Observe(connection.Event{Kind: connection.KindFrame, Frame: transport.Text("hello")})

	if got := testutil.ToFloat64(FramesReceivedTotal.WithLabelValues("text")); got != before+1 {
		t.Errorf("FramesReceivedTotal = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(FrameBytesReceivedTotal.WithLabelValues("text")); got != bytesBefore+5 {
		t.Errorf("FrameBytesReceivedTotal = %v, want %v", got, bytesBefore+5)
	}
}

func TestCloseCodeLabel(t *testing.T) {
	if got := closeCodeLabel(0); got != "none" {
		t.Errorf("closeCodeLabel(0) = %q, want none", got)
	}
	if got := closeCodeLabel(1001); got != "1001" {
		t.Errorf("closeCodeLabel(1001) = %q, want 1001", got)
	}
}
