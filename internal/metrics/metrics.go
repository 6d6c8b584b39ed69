package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the coordinator's Prometheus instruments. A nil
// *Collector is valid and records nothing, so tests and minimal
// deployments can skip metrics entirely.
type Collector struct {
	endpointsOnline prometheus.Gauge
	callsStarted    prometheus.Counter
	callsConnected  prometheus.Counter
	callFailures    *prometheus.CounterVec
	callsEnded      *prometheus.CounterVec
	callDuration    prometheus.Histogram
}

func New() *Collector {
	return &Collector{
		endpointsOnline: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Name:      "endpoints_online",
			Help:      "Number of currently registered endpoints",
		}),
		callsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "calls_started_total",
			Help:      "Total call attempts accepted by the coordinator",
		}),
		callsConnected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "calls_connected_total",
			Help:      "Total calls that reached the connected phase",
		}),
		callFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "call_failures_total",
			Help:      "Call attempts rejected before ringing, by reason",
		}, []string{"reason"}),
		callsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "calls_ended_total",
			Help:      "Calls torn down, by reason",
		}, []string{"reason"}),
		callDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rendezvous",
			Name:      "call_duration_seconds",
			Help:      "Connected duration of completed calls",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
	}
}

func (c *Collector) EndpointRegistered() {
	if c != nil {
		c.endpointsOnline.Inc()
	}
}

func (c *Collector) EndpointRemoved() {
	if c != nil {
		c.endpointsOnline.Dec()
	}
}

func (c *Collector) CallStarted() {
	if c != nil {
		c.callsStarted.Inc()
	}
}

func (c *Collector) CallConnected() {
	if c != nil {
		c.callsConnected.Inc()
	}
}

func (c *Collector) CallFailed(reason string) {
	if c != nil {
		c.callFailures.WithLabelValues(reason).Inc()
	}
}

// CallEnded records a teardown; connectedAt is zero for calls that never
// reached the connected phase.
func (c *Collector) CallEnded(reason string, connectedAt time.Time) {
	if c == nil {
		return
	}
	c.callsEnded.WithLabelValues(reason).Inc()
	if !connectedAt.IsZero() {
		c.callDuration.Observe(time.Since(connectedAt).Seconds())
	}
}
