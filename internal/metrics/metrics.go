// Package metrics exposes prometheus collectors for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the API collectors.
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	logins     *prometheus.CounterVec
	marks      *prometheus.CounterVec
	challenges *prometheus.CounterVec
}

// New registers collectors on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendtrack",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendtrack",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendtrack",
			Name:      "logins_total",
			Help:      "Login attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendtrack",
			Name:      "attendance_marks_total",
			Help:      "Attendance rows written by status.",
		}, []string{"status"}),
		challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendtrack",
			Name:      "biometric_challenges_total",
			Help:      "Biometric challenges issued by purpose.",
		}, []string{"purpose"}),
	}
	reg.MustRegister(
		m.requests, m.latency, m.logins, m.marks, m.challenges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// Middleware counts requests by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Login counts a login attempt; method is password, biometric or admin.
func (m *Metrics) Login(method string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.logins.WithLabelValues(method, outcome).Inc()
}

// AttendanceMarked counts a written attendance row.
func (m *Metrics) AttendanceMarked(status string) {
	m.marks.WithLabelValues(status).Inc()
}

// ChallengeIssued counts a biometric challenge.
func (m *Metrics) ChallengeIssued(purpose string) {
	m.challenges.WithLabelValues(purpose).Inc()
}
