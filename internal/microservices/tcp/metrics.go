package tcp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "txserver"

// label used for message types that have no handler, keeps cardinality bounded
const unsupportedLabel = "unsupported"

// Metrics holds the prometheus collectors for the TCP server.
// A nil *Metrics records nothing.
type Metrics struct {
	connectedClients  prometheus.Gauge
	connectionsTotal  prometheus.Counter
	messagesTotal     *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	protocolErrors    prometheus.Counter
	broadcastFailures prometheus.Counter
}

// NewMetrics registers the collectors with reg.
// A nil reg selects prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		connectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_clients",
			Help:      "Number of sessions currently registered",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total number of accepted connections",
		}),
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Total number of dispatched messages by type and response status",
		}, []string{"type", "status"}),
		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Handler execution time in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		protocolErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of frames that could not be decoded as messages",
		}),
		broadcastFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_failures_total",
			Help:      "Total number of failed per-client broadcast writes",
		}),
	}
}

func (m *Metrics) clientConnected() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectedClients.Inc()
}

func (m *Metrics) clientDisconnected() {
	if m == nil {
		return
	}
	m.connectedClients.Dec()
}

// resetClients is used after a forced shutdown cleared the registry
func (m *Metrics) resetClients() {
	if m == nil {
		return
	}
	m.connectedClients.Set(0)
}

func (m *Metrics) observeDispatch(msgType string, status Status, took time.Duration) {
	if m == nil {
		return
	}
	label := string(status)
	if label == "" {
		label = "NONE"
	}
	m.messagesTotal.WithLabelValues(msgType, label).Inc()
	m.dispatchDuration.WithLabelValues(msgType).Observe(took.Seconds())
}

func (m *Metrics) unsupported() {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(unsupportedLabel, string(StatusError)).Inc()
}

func (m *Metrics) protocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

func (m *Metrics) broadcastFailed() {
	if m == nil {
		return
	}
	m.broadcastFailures.Inc()
}
