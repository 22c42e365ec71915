/*
Package metrics defines the Prometheus collectors exported by the chat server.

Collectors are registered against an explicit prometheus.Registerer so tests can use an
isolated registry while the server exposes its own through promhttp.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every collector name.
const Namespace = "linechat"

// Metrics holds the collectors updated by the chat core.
type Metrics struct {
	// ActiveSessions counts open connections in any state.
	ActiveSessions prometheus.Gauge

	// JoinedSessions counts sessions currently present in the registry.
	JoinedSessions prometheus.Gauge

	// MessagesTotal counts chat messages accepted, by kind (public, private).
	MessagesTotal *prometheus.CounterVec

	// DroppedFrames counts outbound frames discarded because a session queue was full.
	DroppedFrames prometheus.Counter

	// AuthFailures counts rejected authentication attempts, by reason.
	AuthFailures *prometheus.CounterVec

	// CodesQueued counts one-time codes offered to the delivery queue, by flow and outcome
	// (queued, dropped).
	CodesQueued *prometheus.CounterVec

	// CodesDelivered counts notifier calls finished by the delivery worker, by flow and outcome
	// (sent, failed).
	CodesDelivered *prometheus.CounterVec
}

// New registers the chat collectors with reg. A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_sessions",
			Help:      "Number of open chat connections",
		}),

		JoinedSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "joined_sessions",
			Help:      "Number of sessions joined to the chat",
		}),

		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_total",
			Help:      "Total number of chat messages accepted",
		}, []string{"kind"}),

		DroppedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dropped_frames_total",
			Help:      "Outbound frames dropped because a session queue was full",
		}),

		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected authentication attempts",
		}, []string{"reason"}),

		CodesQueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "codes_queued_total",
			Help:      "One-time codes offered to the delivery queue",
		}, []string{"flow", "outcome"}),

		CodesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "codes_delivered_total",
			Help:      "One-time code deliveries attempted by the notifier",
		}, []string{"flow", "outcome"}),
	}
}

// NewNop returns collectors registered against a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
