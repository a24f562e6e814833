package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the enrollment counters.
const (
	outcomeSuccess         = "success"
	outcomeMismatch        = "mismatch"
	outcomeUnknownUser     = "unknown_user"
	outcomeAlreadyVerified = "already_verified"
	outcomeBadRequest      = "bad_request"
	outcomeError           = "error"
)

// Metrics holds the service's Prometheus collectors on a private registry so
// several routers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	registrations *prometheus.CounterVec
	verifications *prometheus.CounterVec
	validations   *prometheus.CounterVec
	rateLimited   prometheus.Counter
	duration      *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Enrollment confirmations by outcome.",
		}, []string{"outcome"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Code validations by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_rate_limited_total",
			Help:      "Registrations rejected by the per-client limiter.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Handler latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code", "method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.registrations,
		m.verifications,
		m.validations,
		m.rateLimited,
		m.duration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument records handler latency under route.
func (m *Metrics) Instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerDuration(
			m.duration.MustCurryWith(prometheus.Labels{"route": route}),
			next,
		)
	}
}
