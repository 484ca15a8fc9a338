// Package metrics holds the Prometheus instruments of the locality core.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service counters and histograms.
type Metrics struct {
	CheckIns      *prometheus.CounterVec
	CheckOuts     prometheus.Counter
	Rejections    *prometheus.CounterVec
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	LockWait      prometheus.Histogram
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckIns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whereabouts_checkins_total",
				Help: "Localities opened, by source (sensor, environmental, manual)",
			},
			[]string{"source"},
		),
		CheckOuts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "whereabouts_checkouts_total",
				Help: "Active localities closed",
			},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whereabouts_rejections_total",
				Help: "Operations rejected, by reason",
			},
			[]string{"reason"},
		),
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whereabouts_queries_total",
				Help: "Proximity queries resolved, by strategy",
			},
			[]string{"strategy"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whereabouts_query_duration_seconds",
				Help:    "Proximity query latency, by strategy",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		LockWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "whereabouts_lock_wait_seconds",
				Help:    "Time spent waiting for per-key locks",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
		),
	}
	reg.MustRegister(m.CheckIns, m.CheckOuts, m.Rejections, m.Queries, m.QueryDuration, m.LockWait)
	return m
}

func (m *Metrics) CheckIn(source string) {
	if m == nil {
		return
	}
	m.CheckIns.WithLabelValues(source).Inc()
}

func (m *Metrics) CheckOut() {
	if m == nil {
		return
	}
	m.CheckOuts.Inc()
}

func (m *Metrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

// ObserveQuery counts one resolved query and its latency since start.
func (m *Metrics) ObserveQuery(strategy string, start time.Time) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(strategy).Inc()
	m.QueryDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}
