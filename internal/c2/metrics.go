package c2

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry   *prometheus.Registry
	heartbeats *prometheus.CounterVec
	acks       *prometheus.CounterVec
	pending    prometheus.GaugeFunc
}

func newMetrics(state *State) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowharness",
			Subsystem: "c2",
			Name:      "heartbeats_total",
			Help:      "Heartbeats received, by agent class.",
		}, []string{"agent_class"}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowharness",
			Subsystem: "c2",
			Name:      "acknowledgements_total",
			Help:      "Operation acknowledgements received, by reported state.",
		}, []string{"state"}),
		pending: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "flowharness",
			Subsystem: "c2",
			Name:      "pending_operations",
			Help:      "Operations queued and not yet handed to an agent.",
		}, func() float64 { return float64(state.PendingOperations()) }),
	}
	m.registry.MustRegister(m.heartbeats, m.acks, m.pending)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
