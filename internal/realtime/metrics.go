package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors a Client reports to.
//
// Metrics collected:
//   - auraxis_realtime_frames_received_total: inbound text frames by envelope type
//   - auraxis_realtime_events_delivered_total: events handed to the consumer by name
//   - auraxis_realtime_decode_errors_total: frames dropped by decode failure kind
//   - auraxis_realtime_frames_sent_total: outbound frames by websocket opcode
//   - auraxis_realtime_keepalive_failures_total: pings that could not be queued
//   - auraxis_realtime_reconnects_total: successful re-dials
//   - auraxis_realtime_sessions_active: live sessions (0 or 1)
type Metrics struct {
	framesReceived    *prometheus.CounterVec
	eventsDelivered   *prometheus.CounterVec
	decodeErrors      *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	keepaliveFailures prometheus.Counter
	reconnects        prometheus.Counter
	sessionsActive    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns, sub = "auraxis", "realtime"

	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "frames_received_total",
			Help:      "Inbound text frames by envelope type",
		}, []string{"type"}),

		eventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "events_delivered_total",
			Help:      "Events delivered to the consumer by event name",
		}, []string{"event"}),

		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "decode_errors_total",
			Help:      "Inbound frames dropped because they could not be decoded",
		}, []string{"kind"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "frames_sent_total",
			Help:      "Outbound frames written by websocket opcode",
		}, []string{"opcode"}),

		keepaliveFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "keepalive_failures_total",
			Help:      "Keepalive pings that could not be queued",
		}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "reconnects_total",
			Help:      "Successful re-dials after a session ended",
		}),

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "sessions_active",
			Help:      "Number of live push sessions",
		}),
	}
}
