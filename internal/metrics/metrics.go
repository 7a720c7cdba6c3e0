// Package metrics exposes connection lifecycle metrics for the event loops.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/y0ncha/web-server/internal/conn"
)

// Collector records event loop activity. A nil *Collector is valid and
// records nothing, so callers never need to check.
type Collector struct {
	accepted      prometheus.Counter
	rejected      prometheus.Counter
	active        prometheus.Gauge
	requests      prometheus.Counter
	evicted       *prometheus.CounterVec
	bytesReceived prometheus.Counter
	bytesSent     prometheus.Counter
	pollWait      prometheus.Histogram
}

// New registers the collectors with reg under namespace. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "webserver"
	}
	factory := promauto.With(reg)

	return &Collector{
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted client connections",
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Accepted sockets closed because they could not be registered",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently owned by the event loop",
		}),
		requests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of fully framed requests",
		}),
		evicted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_evicted_total",
			Help:      "Connections removed from the event loop, by final state",
		}, []string{"state"}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Bytes received from clients",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Bytes sent to clients",
		}),
		pollWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_wait_seconds",
			Help:      "Time spent blocked in the readiness wait",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		}),
	}
}

// Accepted records a new connection.
func (c *Collector) Accepted() {
	if c == nil {
		return
	}
	c.accepted.Inc()
	c.active.Inc()
}

// Rejected records an accepted socket that was closed immediately.
func (c *Collector) Rejected() {
	if c == nil {
		return
	}
	c.rejected.Inc()
}

// Evicted records the removal of a connection in final state s.
func (c *Collector) Evicted(s conn.State) {
	if c == nil {
		return
	}
	c.evicted.WithLabelValues(s.String()).Inc()
	c.active.Dec()
}

// PollWait records one readiness wait.
func (c *Collector) PollWait(d time.Duration) {
	if c == nil {
		return
	}
	c.pollWait.Observe(d.Seconds())
}

// Received implements conn.Observer.
func (c *Collector) Received(n int) {
	if c == nil {
		return
	}
	c.bytesReceived.Add(float64(n))
}

// Sent implements conn.Observer.
func (c *Collector) Sent(n int) {
	if c == nil {
		return
	}
	c.bytesSent.Add(float64(n))
}

// Transition implements conn.Observer.
func (c *Collector) Transition(_, to conn.State) {
	if c == nil {
		return
	}
	if to == conn.RequestBuffered {
		c.requests.Inc()
	}
}
