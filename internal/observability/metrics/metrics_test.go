package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleMetricsObserve(t *testing.T) {
	m := NewLifecycleMetrics(prometheus.NewRegistry())
	m.ObserveTransition("confirm", nil)
	m.ObserveTransition("confirm", nil)
	m.ObserveTransition("confirm", errors.New("boom"))
	m.ObservePipeline("render", errors.New("timeout"))
	m.ObserveRenderLatency(1.5)
	m.ObserveEmail("confirmation", nil)

	assert.Equal(t, float64(2), counterValue(t, m.transitionsTotal.WithLabelValues("confirm", "ok")))
	assert.Equal(t, float64(1), counterValue(t, m.transitionsTotal.WithLabelValues("confirm", "error")))
	assert.Equal(t, float64(1), counterValue(t, m.pipelineTotal.WithLabelValues("render", "error")))
	assert.Equal(t, float64(1), counterValue(t, m.emailTotal.WithLabelValues("confirmation", "ok")))

	var metric dto.Metric
	require.NoError(t, m.renderLatency.Write(&metric))
	assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
	assert.Equal(t, 1.5, metric.GetHistogram().GetSampleSum())
}

func TestLifecycleMetricsNilSafe(t *testing.T) {
	var m *LifecycleMetrics
	m.ObserveTransition("reject", nil)
	m.ObservePipeline("email", nil)
	m.ObserveRenderLatency(0.1)
	m.ObserveEmail("rejection", nil)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, c.Write(&metric))
	return metric.GetCounter().GetValue()
}
