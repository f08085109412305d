// Package metrics exposes Prometheus counters for the command and telemetry
// channels. A nil *Metrics is valid and records nothing, so components can be
// built without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ifmctl"

// Metrics holds Prometheus metrics for the client
type Metrics struct {
	commandsSent     *prometheus.CounterVec
	commandsRejected *prometheus.CounterVec
	commandsFailed   *prometheus.CounterVec
	commandDuration  prometheus.Histogram
	framesReceived   prometheus.Counter
	framesDecoded    prometheus.Counter
	decodeErrors     *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

// New creates and registers client metrics. A nil registerer returns nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "sent_total",
			Help:      "Commands sent to the device",
		}, []string{"command"}),
		commandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "rejected_total",
			Help:      "Commands rejected locally before any network I/O",
		}, []string{"reason"}),
		commandsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "failed_total",
			Help:      "Commands that failed on the transport",
		}, []string{"command"}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Round trip time from send to reply",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Telemetry frames received",
		}),
		framesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_decoded_total",
			Help:      "Telemetry frames decoded into averages",
		}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "decode_errors_total",
			Help:      "Telemetry frames that could not be decoded",
		}, []string{"reason"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_sessions",
			Help:      "Telemetry sessions currently running (0 or 1)",
		}),
	}

	reg.MustRegister(
		m.commandsSent,
		m.commandsRejected,
		m.commandsFailed,
		m.commandDuration,
		m.framesReceived,
		m.framesDecoded,
		m.decodeErrors,
		m.activeSessions,
	)
	return m
}

func (m *Metrics) CommandSent(command string, took time.Duration) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(command).Inc()
	m.commandDuration.Observe(took.Seconds())
}

func (m *Metrics) CommandRejected(reason string) {
	if m == nil {
		return
	}
	m.commandsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) CommandFailed(command string) {
	if m == nil {
		return
	}
	m.commandsFailed.WithLabelValues(command).Inc()
}

func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Metrics) FrameDecoded() {
	if m == nil {
		return
	}
	m.framesDecoded.Inc()
}

func (m *Metrics) DecodeError(reason string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(reason).Inc()
}

// SessionStarted and SessionStopped track the active session gauge
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionStopped() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
