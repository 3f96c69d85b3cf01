package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FrameSent("measurements")
	m.FrameSent("measurements")
	m.FrameReceived("command")
	m.DecodeError()
	m.HandlerError("command")
	m.QueueDepth(3)
	m.QueueRejected()
	m.ReconnectAttempt("503")
	m.Connected(true)
	m.DuplicateCommand()

	families := gather(t, reg)

	sent := families["gateway_frames_sent_total"]
	require.NotNil(t, sent)
	require.Len(t, sent.GetMetric(), 1)
	assert.Equal(t, 2.0, sent.GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, "measurements", sent.GetMetric()[0].GetLabel()[0].GetValue())

	assert.Equal(t, 3.0, families["gateway_queue_depth"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, families["gateway_connected"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, families["gateway_decode_errors_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Contains(t, families, "gateway_reconnect_attempts_total")
	assert.Contains(t, families, "gateway_duplicate_commands_total")

	m.Connected(false)
	families = gather(t, reg)
	assert.Equal(t, 0.0, families["gateway_connected"].GetMetric()[0].GetGauge().GetValue())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FrameSent("x")
		m.QueueDepth(1)
		m.Connected(true)
	})
}

func TestNewWithoutRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
