package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rentid"

// Metrics holds the service collectors on a private registry. A nil *Metrics
// records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	issued        *prometheus.CounterVec
	consumed      *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	mail          *prometheus.CounterVec
	maintenance   *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	requestsTotal *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_records_issued_total",
			Help:      "Verification records issued, by purpose.",
		}, []string{"purpose"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_records_consumed_total",
			Help:      "Verification records spent, by purpose.",
		}, []string{"purpose"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_cooldown_blocked_total",
			Help:      "Issuance requests rejected by the cooldown gate, by purpose.",
		}, []string{"purpose"}),
		mail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_dispatch_total",
			Help:      "Mail dispatch attempts, by template and outcome.",
		}, []string{"template", "outcome"}),
		maintenance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_rows_removed_total",
			Help:      "Rows removed by maintenance tasks, by task.",
		}, []string{"task"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mail_queue_depth",
			Help:      "Jobs waiting in the in-process mail queue.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.issued, m.consumed, m.rateLimited, m.mail, m.maintenance, m.queueDepth, m.requestsTotal,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordIssued(purpose string) {
	if m != nil {
		m.issued.WithLabelValues(purpose).Inc()
	}
}

func (m *Metrics) RecordConsumed(purpose string) {
	if m != nil {
		m.consumed.WithLabelValues(purpose).Inc()
	}
}

func (m *Metrics) RecordRateLimited(purpose string) {
	if m != nil {
		m.rateLimited.WithLabelValues(purpose).Inc()
	}
}

func (m *Metrics) RecordMail(template string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.mail.WithLabelValues(template, outcome).Inc()
}

func (m *Metrics) RecordRemoved(task string, rows int64) {
	if m != nil && rows > 0 {
		m.maintenance.WithLabelValues(task).Add(float64(rows))
	}
}

func (m *Metrics) SetQueueDepth(depth int) {
	if m != nil {
		m.queueDepth.Set(float64(depth))
	}
}

func (m *Metrics) RecordRequest(method, route, status string) {
	if m != nil {
		m.requestsTotal.WithLabelValues(method, route, status).Inc()
	}
}
