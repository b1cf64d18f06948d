// Package metrics exposes RSVP service counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rsvp"

// Metrics holds every collector the service records into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	tokensIssued     *prometheus.CounterVec
	tokenValidations *prometheus.CounterVec
	accessCodeChecks *prometheus.CounterVec
	feedDropped      prometheus.Counter
	httpDuration     *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, plus Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "RSVP tokens minted, by token type.",
		}, []string{"type"}),
		tokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_validations_total",
			Help:      "RSVP token resolutions, by outcome code.",
		}, []string{"code"}),
		accessCodeChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_code_checks_total",
			Help:      "Access code verifications, by result.",
		}, []string{"result"}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_dropped_total",
			Help:      "Activity feed events dropped due to slow subscribers.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status_class"}),
	}

	reg.MustRegister(
		m.tokensIssued,
		m.tokenValidations,
		m.accessCodeChecks,
		m.feedDropped,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// TokenIssued counts one minted token of tokenType.
func (m *Metrics) TokenIssued(tokenType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(tokenType).Inc()
}

// TokenValidated counts one resolution outcome ("VALID" or a failure code).
func (m *Metrics) TokenValidated(code string) {
	if m == nil {
		return
	}
	m.tokenValidations.WithLabelValues(code).Inc()
}

// AccessCodeChecked counts one access code verification.
func (m *Metrics) AccessCodeChecked(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.accessCodeChecks.WithLabelValues(result).Inc()
}

// AccessCodeLimited counts one rate-limited verification attempt.
func (m *Metrics) AccessCodeLimited() {
	if m == nil {
		return
	}
	m.accessCodeChecks.WithLabelValues("rate_limited").Inc()
}

// FeedEventDropped counts one event a slow feed subscriber missed.
func (m *Metrics) FeedEventDropped() {
	if m == nil {
		return
	}
	m.feedDropped.Inc()
}

// ObserveHTTP records one request's latency.
func (m *Metrics) ObserveHTTP(method, statusClass string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, statusClass).Observe(d.Seconds())
}
