// Package metrics provides Prometheus metrics for the helpdesk core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ConnectedClients   *prometheus.GaugeVec
	MessagesRouted     *prometheus.CounterVec
	SLABreaches        *prometheus.CounterVec
	AutoResponses      prometheus.Counter
	AutoResponseMisses prometheus.Counter
	SweepDuration      prometheus.Histogram
	SweepConversations prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{}

	m.ConnectedClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helpdesk_connected_clients",
			Help: "Currently connected websocket clients",
		},
		[]string{"kind"},
	)

	m.MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_messages_routed_total",
			Help: "Messages persisted and fanned out",
		},
		[]string{"sender_kind"},
	)

	m.SLABreaches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_sla_breaches_total",
			Help: "SLA breach events emitted by the monitor",
		},
		[]string{"kind"},
	)

	m.AutoResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_auto_responses_total",
			Help: "Bot replies injected by the FAQ auto-responder",
		},
	)

	m.AutoResponseMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_auto_response_misses_total",
			Help: "Visitor messages with no FAQ match above the threshold",
		},
	)

	m.SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helpdesk_sla_sweep_duration_seconds",
			Help:    "Duration of one SLA monitor sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.SweepConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "helpdesk_sla_sweep_conversations",
			Help: "Non-terminal conversations seen by the last sweep",
		},
	)

	return m
}
