package metrics

import "github.com/prometheus/client_golang/prometheus"

// LifecycleMetrics exposes counters/histograms for appointment transitions and
// the confirmation pipeline.
type LifecycleMetrics struct {
	transitionsTotal *prometheus.CounterVec
	pipelineTotal    *prometheus.CounterVec
	renderLatency    prometheus.Histogram
	emailTotal       *prometheus.CounterVec
}

func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	m := &LifecycleMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Total appointment lifecycle operations",
		}, []string{"operation", "outcome"}),
		pipelineTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "confirmation",
			Name:      "pipeline_total",
			Help:      "Confirmation pipeline results by stage",
		}, []string{"stage", "outcome"}),
		renderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "confirmation",
			Name:      "render_latency_seconds",
			Help:      "Latency of slip PDF rendering",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		emailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "notify",
			Name:      "email_total",
			Help:      "Emails sent by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.pipelineTotal, m.renderLatency, m.emailTotal)
	return m
}

func (m *LifecycleMetrics) ObserveTransition(operation string, err error) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *LifecycleMetrics) ObservePipeline(stage string, err error) {
	if m == nil {
		return
	}
	m.pipelineTotal.WithLabelValues(stage, outcome(err)).Inc()
}

func (m *LifecycleMetrics) ObserveRenderLatency(seconds float64) {
	if m == nil {
		return
	}
	m.renderLatency.Observe(seconds)
}

func (m *LifecycleMetrics) ObserveEmail(kind string, err error) {
	if m == nil {
		return
	}
	m.emailTotal.WithLabelValues(kind, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
