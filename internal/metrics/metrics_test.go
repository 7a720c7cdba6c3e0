package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/y0ncha/web-server/internal/conn"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "test")

	c.Accepted()
	c.Accepted()
	c.Rejected()
	c.Received(10)
	c.Sent(25)
	c.Transition(conn.AwaitingRequest, conn.RequestBuffered)
	c.Transition(conn.RequestBuffered, conn.ResponseReady)
	c.Evicted(conn.Terminated)
	c.PollWait(3 * time.Millisecond)

	if got := testutil.ToFloat64(c.accepted); got != 2 {
		t.Errorf("accepted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.active); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.rejected); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.requests); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.evicted.WithLabelValues("Terminated")); got != 1 {
		t.Errorf("evicted{Terminated} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.bytesReceived); got != 10 {
		t.Errorf("received = %v, want 10", got)
	}
	if got := testutil.ToFloat64(c.bytesSent); got != 25 {
		t.Errorf("sent = %v, want 25", got)
	}
	if n := testutil.CollectAndCount(c.pollWait); n != 1 {
		t.Errorf("poll wait series = %d, want 1", n)
	}
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	c.Accepted()
	c.Rejected()
	c.Received(1)
	c.Sent(1)
	c.Transition(conn.AwaitingRequest, conn.RequestBuffered)
	c.Evicted(conn.Completed)
	c.PollWait(time.Second)
}
