// Package metrics exposes Prometheus collectors for the whiteboard server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every collector name.
const Namespace = "whiteboard"

// Metrics holds the server's collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	connectionsTotal  *prometheus.CounterVec
	activeConnections prometheus.Gauge
	commandsTotal     *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	linesDelivered    prometheus.Counter
	slowConsumers     prometheus.Counter
	boards            prometheus.Gauge
	linesDrawn        prometheus.Counter
}

// New registers the collectors with reg. Passing prometheus.DefaultRegisterer
// exposes them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted connections by transport",
		}, []string{"transport"}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of connections currently open",
		}),

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Total number of requests by command and outcome",
		}, []string{"command", "status"}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "command_duration_seconds",
			Help:      "Request handling duration in seconds",
			Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"command"}),

		linesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "responses_queued_total",
			Help:      "Total number of response lines queued for delivery",
		}),

		slowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "slow_consumers_total",
			Help:      "Connections closed because their outbound queue was full",
		}),

		boards: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "boards",
			Help:      "Number of boards, lobby excluded",
		}),

		linesDrawn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lines_drawn_total",
			Help:      "Total number of lines drawn on any board",
		}),
	}
}

// ConnectionOpened records a new connection on transport.
func (m *Metrics) ConnectionOpened(transport string) {
	if m == nil {
		return
	}
	m.connectionsTotal.WithLabelValues(transport).Inc()
	m.activeConnections.Inc()
}

// ConnectionClosed records a closed connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

// CommandHandled records one request. An empty command means the line did
// not parse.
func (m *Metrics) CommandHandled(command string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	if command == "" {
		command = "invalid"
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.commandsTotal.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ResponsesQueued records n response lines handed to client queues.
func (m *Metrics) ResponsesQueued(n int) {
	if m == nil {
		return
	}
	m.linesDelivered.Add(float64(n))
}

// SlowConsumerDropped records a connection closed for falling behind.
func (m *Metrics) SlowConsumerDropped() {
	if m == nil {
		return
	}
	m.slowConsumers.Inc()
}

// BoardCreated records a new board.
func (m *Metrics) BoardCreated() {
	if m == nil {
		return
	}
	m.boards.Inc()
}

// LineDrawn records a new line.
func (m *Metrics) LineDrawn() {
	if m == nil {
		return
	}
	m.linesDrawn.Inc()
}
