package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of both binaries. Every method is a
// no-op on a nil *Metrics so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter

	origins         prometheus.Gauge
	viewers         prometheus.Gauge
	modeTransitions *prometheus.CounterVec
	broadcasts      *prometheus.CounterVec
	logins          *prometheus.CounterVec

	bytesServed   prometheus.Counter
	rangeRequests prometheus.Counter
	acquisitions  *prometheus.CounterVec
	rescans       prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchalong_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchalong_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		origins: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchalong_origins",
			Help: "Number of registered origins",
		}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchalong_viewers",
			Help: "Number of admitted viewers across all origins",
		}),
		modeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchalong_mode_transitions_total",
			Help: "Reconciliation mode transitions by target mode",
		}, []string{"to"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchalong_broadcasts_total",
			Help: "Broadcasts sent to viewers by kind",
		}, []string{"kind"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchalong_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		bytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchalong_bytes_served_total",
			Help: "Media bytes written to clients",
		}),
		rangeRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchalong_range_requests_total",
			Help: "Media requests answered with a partial response",
		}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchalong_acquisitions_total",
			Help: "Acquisition attempts by result",
		}, []string{"result"}),
		rescans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchalong_rescans_total",
			Help: "Library rescans performed",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.origins,
		m.viewers,
		m.modeTransitions,
		m.broadcasts,
		m.logins,
		m.bytesServed,
		m.rangeRequests,
		m.acquisitions,
		m.rescans,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

func (m *Metrics) SetOrigins(n int) {
	if m != nil {
		m.origins.Set(float64(n))
	}
}

func (m *Metrics) SetViewers(n int) {
	if m != nil {
		m.viewers.Set(float64(n))
	}
}

func (m *Metrics) IncModeTransition(to string) {
	if m != nil {
		m.modeTransitions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) IncBroadcast(kind string) {
	if m != nil {
		m.broadcasts.WithLabelValues(kind).Inc()
	}
}

// IncLogin counts a login outcome ("accepted" or a rejection reason).
func (m *Metrics) IncLogin(result string) {
	if m != nil {
		m.logins.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) AddBytesServed(n int64) {
	if m != nil && n > 0 {
		m.bytesServed.Add(float64(n))
	}
}

func (m *Metrics) IncRangeRequests() {
	if m != nil {
		m.rangeRequests.Inc()
	}
}

// IncAcquisition counts an acquisition outcome ("ok", "rejected", "failed").
func (m *Metrics) IncAcquisition(result string) {
	if m != nil {
		m.acquisitions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncRescans() {
	if m != nil {
		m.rescans.Inc()
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
