// Package metrics exposes the origin server's internal counters as
// Prometheus collectors, scraped by the admin side-channel over /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements handler.Recorder, registering its collectors against
// prometheus.DefaultRegisterer so they are exposed alongside the admin
// server's own echoprometheus HTTP instrumentation on the same /metrics
// endpoint. A process constructs exactly one Recorder.
type Recorder struct {
	requestsTotal *prometheus.CounterVec
	dispatchTime  prometheus.Histogram
	queueDepth    prometheus.Gauge
	activeWorkers prometheus.Gauge
}

// New registers the dispatchd collectors. Call it once per process.
func New() *Recorder {
	return &Recorder{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatchd",
			Name:      "requests_total",
			Help:      "Total number of completed requests, by classification.",
		}, []string{"kind"}),
		dispatchTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dispatchd",
			Name:      "dispatch_seconds",
			Help:      "Time a request waited in the queue before a worker picked it up.",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "dispatchd",
			Name:      "queue_depth",
			Help:      "Current number of connections waiting in the bounded work queue.",
		}),
		activeWorkers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "dispatchd",
			Name:      "active_workers",
			Help:      "Current number of workers inside a request handler.",
		}),
	}
}

// IncRequests implements handler.Recorder.
func (r *Recorder) IncRequests(kind string) {
	r.requestsTotal.WithLabelValues(kind).Inc()
}

// ObserveDispatch implements handler.Recorder.
func (r *Recorder) ObserveDispatch(d time.Duration) {
	r.dispatchTime.Observe(d.Seconds())
}

// SetQueueDepth reports the queue's current occupancy.
func (r *Recorder) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}

// SetActiveWorkers reports how many workers are currently inside a handler.
func (r *Recorder) SetActiveWorkers(n int64) {
	r.activeWorkers.Set(float64(n))
}
