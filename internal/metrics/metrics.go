// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gateway"

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	framesSent      *prometheus.CounterVec
	framesReceived  *prometheus.CounterVec
	decodeErrors    prometheus.Counter
	handlerErrors   *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	queueRejected   prometheus.Counter
	reconnects      *prometheus.CounterVec
	connected       prometheus.Gauge
	commandsSkipped prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses a private registry
// so that several gateways can live in one process.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the platform by message type",
		}, []string{"type"}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded from the platform by message type",
		}, []string{"type"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames that could not be decoded",
		}),
		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handler failures by message type",
		}, []string{"type"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages waiting in the outbound queue",
		}),
		queueRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_rejected_total",
			Help:      "Messages refused because the outbound queue was full",
		}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnection attempts by failure cause",
		}, []string{"cause"}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while a session with the platform is open",
		}),
		commandsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_commands_total",
			Help:      "Commands skipped because their id was already handled",
		}),
	}
}

func (m *Metrics) FrameSent(msgType string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) FrameReceived(msgType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) HandlerError(msgType string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(msgType).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) QueueRejected() {
	if m == nil {
		return
	}
	m.queueRejected.Inc()
}

func (m *Metrics) ReconnectAttempt(cause string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(cause).Inc()
}

func (m *Metrics) Connected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) DuplicateCommand() {
	if m == nil {
		return
	}
	m.commandsSkipped.Inc()
}
