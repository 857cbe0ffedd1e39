package api

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects in-memory server metrics using atomic counters and mirrors
// them into a private Prometheus registry.
type Metrics struct {
	startTime     time.Time
	requests      atomic.Int64
	serverErrors  atomic.Int64
	clientErrors  atomic.Int64
	logins        atomic.Int64
	loginFailures atomic.Int64
	renders       atomic.Int64

	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	authEvents      *prometheus.CounterVec
	templateRenders prometheus.Counter
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	Requests        int64   `json:"requests"`
	ServerErrors    int64   `json:"server_errors"`
	ClientErrors    int64   `json:"client_errors"`
	Logins          int64   `json:"logins"`
	LoginFailures   int64   `json:"login_failures"`
	TemplateRenders int64   `json:"template_renders"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		startTime: time.Now(),
		registry:  reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jus",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jus",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jus",
			Name:      "auth_events_total",
			Help:      "Authentication events by type.",
		}, []string{"event"}),
		templateRenders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jus",
			Name:      "template_renders_total",
			Help:      "Documents rendered from templates.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.authEvents, m.templateRenders,
	)
	return m
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordAuthEvent counts a login, failed login, logout or signup.
func (m *Metrics) RecordAuthEvent(event string) {
	switch event {
	case "login":
		m.logins.Add(1)
	case "login_failed":
		m.loginFailures.Add(1)
	}
	m.authEvents.WithLabelValues(event).Inc()
}

// RecordRender increments the template render counter.
func (m *Metrics) RecordRender() {
	m.renders.Add(1)
	m.templateRenders.Inc()
}

func (m *Metrics) observe(r *http.Request, code int, d time.Duration) {
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route, r.Method).Observe(d.Seconds())
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:   time.Since(m.startTime).Seconds(),
		Requests:        m.requests.Load(),
		ServerErrors:    m.serverErrors.Load(),
		ClientErrors:    m.clientErrors.Load(),
		Logins:          m.logins.Load(),
		LoginFailures:   m.loginFailures.Load(),
		TemplateRenders: m.renders.Load(),
	}
}
