package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	AuthzDecisionsTotal    *prometheus.CounterVec
	PermissionCacheTotal   *prometheus.CounterVec
	QuizAttemptsTotal      *prometheus.CounterVec
	QuizScores             prometheus.Histogram
	CertificatesTotal      *prometheus.CounterVec
	RBACUsersMigratedTotal prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intranet_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intranet_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intranet_authz_decisions_total",
				Help: "Authorization decisions by permission and outcome",
			},
			[]string{"permission", "allowed"},
		),
		PermissionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intranet_role_permission_cache_total",
				Help: "Role permission cache lookups by result",
			},
			[]string{"result"},
		),
		QuizAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intranet_quiz_attempts_total",
				Help: "Scored quiz attempts by outcome",
			},
			[]string{"passed"},
		),
		QuizScores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "intranet_quiz_score",
				Help:    "Distribution of quiz attempt scores",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		CertificatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intranet_certificates_total",
				Help: "Certificate issuance requests by outcome",
			},
			[]string{"outcome"},
		),
		RBACUsersMigratedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "intranet_rbac_users_migrated_total",
				Help: "Users backfilled with a dynamic role",
			},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.PermissionCacheTotal,
		m.QuizAttemptsTotal,
		m.QuizScores,
		m.CertificatesTotal,
		m.RBACUsersMigratedTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) ObserveAuthz(permission string, allowed bool) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(permission, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) ObservePermissionCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PermissionCacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAttempt(score int, passed bool) {
	if m == nil {
		return
	}
	m.QuizAttemptsTotal.WithLabelValues(strconv.FormatBool(passed)).Inc()
	m.QuizScores.Observe(float64(score))
}

// Certificate outcomes.
const (
	CertificateCreated  = "created"
	CertificateExisting = "existing"
)

func (m *Metrics) ObserveCertificate(outcome string) {
	if m == nil {
		return
	}
	m.CertificatesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUsersMigrated(n int) {
	if m == nil {
		return
	}
	m.RBACUsersMigratedTotal.Add(float64(n))
}
