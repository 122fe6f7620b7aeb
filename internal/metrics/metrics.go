// Package metrics owns MentorFlow's Prometheus collectors.
//
// Collectors live on a private registry rather than the global default, so
// tests can build as many Metrics values as they like without
// "duplicate metrics collector registration" panics.
//
// All recording methods are nil-safe: services built without metrics (unit
// tests) just pass nil.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	taskTransitions *prometheus.CounterVec
	logins          *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	realtimeStreams prometheus.Gauge
}

// New builds and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mentorflow",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mentorflow",
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		taskTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mentorflow",
				Name:      "task_transitions_total",
				Help:      "User task status transitions by kind",
			},
			[]string{"transition"},
		),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mentorflow",
				Name:      "logins_total",
				Help:      "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mentorflow",
				Name:      "notifications_sent_total",
				Help:      "Notifications written by type",
			},
			[]string{"type"},
		),
		realtimeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mentorflow",
			Name:      "realtime_streams",
			Help:      "Open WebSocket streams",
		}),
	}

	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.taskTransitions,
		m.logins,
		m.notifications,
		m.realtimeStreams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Task transition labels.
const (
	TransitionStarted   = "started"
	TransitionSubmitted = "submitted"
	TransitionRetried   = "retried"
	TransitionApproved  = "approved"
	TransitionRejected  = "rejected"
)

// Login outcome labels.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginLocked  = "locked"
)

func (m *Metrics) TaskTransition(transition string) {
	if m == nil {
		return
	}
	m.taskTransitions.WithLabelValues(transition).Inc()
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationsSent(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notifications.WithLabelValues(kind).Add(float64(n))
}

// StreamOpened increments the open-stream gauge and returns the matching
// decrement.
func (m *Metrics) StreamOpened() (closed func()) {
	if m == nil {
		return func() {}
	}
	m.realtimeStreams.Inc()
	return m.realtimeStreams.Dec
}
