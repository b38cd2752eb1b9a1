// Package observability holds Prometheus metrics and OTel tracing for
// keygate. All metrics live on a custom registry — no global state.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for keygate.
type Metrics struct {
	Registry *prometheus.Registry

	// Approval pipeline metrics.
	RequestsProcessed  *prometheus.CounterVec // outcome: approved|denied
	ProcessingFailures *prometheus.CounterVec // reason: cannot_be_processed|missing_key
	PushSends          prometheus.Counter
	EmailSends         prometheus.Counter

	// Expiry sweeper metrics.
	ExpiredPurged prometheus.Counter

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActiveRequests      prometheus.Gauge
}

// NewMetrics creates a Metrics with everything registered on a fresh
// prometheus.Registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		RequestsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "authrequest",
			Name:      "processed_total",
			Help:      "Auth requests decided, by outcome.",
		}, []string{"outcome"}),

		ProcessingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "authrequest",
			Name:      "processing_failures_total",
			Help:      "Auth request updates rejected by the transition guard.",
		}, []string{"reason"}),

		PushSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "authrequest",
			Name:      "push_sends_total",
			Help:      "Auth request responses delivered to devices.",
		}),

		EmailSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "authrequest",
			Name:      "email_sends_total",
			Help:      "Trusted-device approval emails sent.",
		}),

		ExpiredPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "sweeper",
			Name:      "expired_purged_total",
			Help:      "Expired unanswered auth requests deleted.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keygate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keygate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "keygate",
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "In-flight HTTP requests.",
		}),
	}

	reg.MustRegister(
		m.RequestsProcessed,
		m.ProcessingFailures,
		m.PushSends,
		m.EmailSends,
		m.ExpiredPurged,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}
