package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RelayMessage("in", "tabs-list")
		m.TabRequest("timeout")
		m.WindowEnumeration("helper", "ok")
		m.Activation("frontmost", "ok")
		m.SetRelayConnected(true)
		m.SetWindowCacheEntries(3)
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.TabRequest("timeout")
	m.TabRequest("timeout")
	m.TabRequest("response")
	m.SetRelayConnected(true)
	m.SetWindowCacheEntries(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TabRequests.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TabRequests.WithLabelValues("response")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayConnected))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.WindowCacheEntries))
}
