package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vending_kiosk"

// Metrics holds the kiosk's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ActionsTotal       *prometheus.CounterVec
	ActionDuration     *prometheus.HistogramVec
	SessionRequests    *prometheus.CounterVec
	SessionLatency     *prometheus.HistogramVec
	NotificationsShown *prometheus.CounterVec
	ActionBacklog      prometheus.Gauge
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewMetrics creates and registers the kiosk metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "total",
			Help:      "User actions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "duration_seconds",
			Help:      "Wall time of a user action including the state refresh.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		SessionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Requests sent to the vending service by operation and result.",
		}, []string{"op", "result"}),
		SessionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "request_duration_seconds",
			Help:      "Latency of requests to the vending service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		NotificationsShown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "shown_total",
			Help:      "Notifications shown by kind.",
		}, []string{"kind"}),
		ActionBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "backlog",
			Help:      "Actions queued or in flight.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Kiosk HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Kiosk HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.ActionsTotal, m.ActionDuration, m.SessionRequests, m.SessionLatency,
		m.NotificationsShown, m.ActionBacklog, m.HTTPRequests, m.HTTPDuration)
	return m
}

// Handler serves the metrics in reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAction(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(kind, outcome).Inc()
	m.ActionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveSessionRequest(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SessionRequests.WithLabelValues(op, result).Inc()
	m.SessionLatency.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) NotificationShown(kind string) {
	if m == nil {
		return
	}
	m.NotificationsShown.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetBacklog(n int) {
	if m == nil {
		return
	}
	m.ActionBacklog.Set(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
