package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the wizard controller.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	MountsTotal          prometheus.Counter
	UnmountsTotal        *prometheus.CounterVec
	ActiveMounts         prometheus.Gauge
	StepRendersTotal     *prometheus.CounterVec
	UnmatchedPathsTotal  prometheus.Counter
	QueryParamsCaptured  prometheus.Counter
	QueryCaptureFailures prometheus.Counter
	SubmissionsTotal     prometheus.Counter
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MountsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "idverify_wizard_mounts_total",
			Help: "Total number of wizard root mounts (full page loads)",
		}),
		UnmountsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_wizard_unmounts_total",
			Help: "Total number of wizard root unmounts by reason",
		}, []string{"reason"}),
		ActiveMounts: f.NewGauge(prometheus.GaugeOpts{
			Name: "idverify_wizard_active_mounts",
			Help: "Current number of live wizard mounts",
		}),
		StepRendersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "idverify_wizard_step_renders_total",
			Help: "Total number of step renders by step",
		}, []string{"step"}),
		UnmatchedPathsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "idverify_wizard_unmatched_paths_total",
			Help: "Total number of outlet renders for a path matching no step",
		}),
		QueryParamsCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "idverify_query_params_captured_total",
			Help: "Total number of query parameters written to session-durable storage",
		}),
		QueryCaptureFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "idverify_query_capture_failures_total",
			Help: "Total number of query parameters that could not be written",
		}),
		SubmissionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "idverify_submissions_total",
			Help: "Total number of verification submissions handed to the submitter",
		}),
	}
}

func (m *Metrics) IncrementMounts() {
	if m == nil {
		return
	}
	m.MountsTotal.Inc()
	m.ActiveMounts.Inc()
}

func (m *Metrics) IncrementUnmounts(reason string) {
	if m == nil {
		return
	}
	m.UnmountsTotal.WithLabelValues(reason).Inc()
	m.ActiveMounts.Dec()
}

func (m *Metrics) IncrementStepRenders(step string) {
	if m == nil {
		return
	}
	m.StepRendersTotal.WithLabelValues(step).Inc()
}

func (m *Metrics) IncrementUnmatchedPaths() {
	if m == nil {
		return
	}
	m.UnmatchedPathsTotal.Inc()
}

func (m *Metrics) AddQueryParamsCaptured(n int) {
	if m == nil {
		return
	}
	m.QueryParamsCaptured.Add(float64(n))
}

func (m *Metrics) IncrementQueryCaptureFailures() {
	if m == nil {
		return
	}
	m.QueryCaptureFailures.Inc()
}

func (m *Metrics) IncrementSubmissions() {
	if m == nil {
		return
	}
	m.SubmissionsTotal.Inc()
}
