// Package metrics holds the Prometheus instruments of the game service.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quiz"

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated prometheus.Counter
	ActiveSessions  prometheus.Gauge
	Connections     prometheus.Gauge
	Answers         *prometheus.CounterVec
	Halts           prometheus.Counter
	DroppedEvents   prometheus.Counter
}

// New registers the instruments on a private registry together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of quiz sessions created",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions that are started and not yet finished",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Currently open WebSocket connections",
		}),
		Answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Recorded answers by correctness",
		}, []string{"correct"}),
		Halts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progression_halts_total",
			Help:      "Sessions whose progression stopped on an upstream failure",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_dropped_total",
			Help:      "Notifications dropped because the dispatcher was saturated",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsCreated,
		m.ActiveSessions,
		m.Connections,
		m.Answers,
		m.Halts,
		m.DroppedEvents,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SessionCreated() {
	if m != nil {
		m.SessionsCreated.Inc()
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionFinished(wasActive bool) {
	if m != nil && wasActive {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) AnswerRecorded(correct bool) {
	if m != nil {
		m.Answers.WithLabelValues(strconv.FormatBool(correct)).Inc()
	}
}

func (m *Metrics) ProgressionHalted() {
	if m != nil {
		m.Halts.Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.DroppedEvents.Inc()
	}
}
