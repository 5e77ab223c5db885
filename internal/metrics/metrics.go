// Package metrics defines the Prometheus collectors exported on /metrics.
//
// Every method is safe to call on a nil *Metrics so components can be built
// without instrumentation in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskswitcher"

// Metrics holds all application collectors
type Metrics struct {
	RelayMessages      *prometheus.CounterVec
	TabRequests        *prometheus.CounterVec
	WindowEnumerations *prometheus.CounterVec
	Activations        *prometheus.CounterVec
	RelayConnected     prometheus.Gauge
	WindowCacheEntries prometheus.Gauge
}

// New registers the collectors with reg. Pass a fresh prometheus.NewRegistry()
// in tests to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RelayMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_messages_total",
				Help:      "Relay envelopes by direction and type",
			},
			[]string{"direction", "type"},
		),
		TabRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tab_requests_total",
				Help:      "Tab list requests by outcome",
			},
			[]string{"outcome"},
		),
		WindowEnumerations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "window_enumerations_total",
				Help:      "Window enumeration attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		Activations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activations_total",
				Help:      "Activation strategy attempts by outcome",
			},
			[]string{"strategy", "outcome"},
		),
		RelayConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connected",
			Help:      "1 when a browser extension peer is connected",
		}),
		WindowCacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_cache_entries",
			Help:      "Windows currently remembered by the enumeration cache",
		}),
	}
}

func (m *Metrics) RelayMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.RelayMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) TabRequest(outcome string) {
	if m == nil {
		return
	}
	m.TabRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WindowEnumeration(source, outcome string) {
	if m == nil {
		return
	}
	m.WindowEnumerations.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Activation(strategy, outcome string) {
	if m == nil {
		return
	}
	m.Activations.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) SetRelayConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.RelayConnected.Set(1)
	} else {
		m.RelayConnected.Set(0)
	}
}

func (m *Metrics) SetWindowCacheEntries(n int) {
	if m == nil {
		return
	}
	m.WindowCacheEntries.Set(float64(n))
}
