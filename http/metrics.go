package http

import (
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records Handler activity as Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	bytesServed    prometheus.Counter
	upstreamTime   prometheus.Histogram
	upstreamErrors prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prefixgz",
			Name:      "requests_total",
			Help:      "Requests served, by HTTP status code.",
		}, []string{"code"}),
		bytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prefixgz",
			Name:      "response_bytes_total",
			Help:      "Archive bytes written to clients.",
		}),
		upstreamTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prefixgz",
			Name:      "upstream_request_seconds",
			Help:      "Time until the upstream answered a prefix range request.",
			Buckets:   prometheus.DefBuckets,
		}),
		upstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prefixgz",
			Name:      "upstream_errors_total",
			Help:      "Prefix range requests that failed or ended early.",
		}),
	}
	reg.MustRegister(m.requests, m.bytesServed, m.upstreamTime, m.upstreamErrors)
	return m
}

// MetricsHandler serves the metrics gathered by g in the Prometheus text format.
func MetricsHandler(g prometheus.Gatherer) nethttp.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) request(code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) served(n int64) {
	if m == nil {
		return
	}
	m.bytesServed.Add(float64(n))
}

func (m *Metrics) upstream(start time.Time, err error) {
	if m == nil {
		return
	}
	m.upstreamTime.Observe(time.Since(start).Seconds())
	if err != nil {
		m.upstreamErrors.Inc()
	}
}

func (m *Metrics) abort() {
	if m == nil {
		return
	}
	m.upstreamErrors.Inc()
}
