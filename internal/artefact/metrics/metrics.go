package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks artefact lifecycle activity. A nil *Metrics is a no-op.
type Metrics struct {
	Operations   *prometheus.CounterVec
	Denials      *prometheus.CounterVec
	Transitions  *prometheus.CounterVec
	Conflicts    *prometheus.CounterVec
	UploadTiming prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kvault_artefact_operations_total",
			Help: "Artefact operations by operation and outcome",
		}, []string{"op", "outcome"}),
		Denials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kvault_authz_denials_total",
			Help: "Authorization denials by operation and reason",
		}, []string{"op", "reason"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kvault_artefact_status_transitions_total",
			Help: "Governance status transitions by from and to status",
		}, []string{"from", "to"}),
		Conflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kvault_artefact_write_conflicts_total",
			Help: "Optimistic concurrency conflicts by operation; exhausted means retries ran out",
		}, []string{"op", "result"}),
		UploadTiming: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kvault_blob_upload_duration_seconds",
			Help:    "Latency of blob uploads for new versions",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) IncOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) IncDenial(op, reason string) {
	if m == nil {
		return
	}
	m.Denials.WithLabelValues(op, reason).Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// IncConflict records a lost compare-and-swap. exhausted is true when the
// operation gave up after its last retry.
func (m *Metrics) IncConflict(op string, exhausted bool) {
	if m == nil {
		return
	}
	result := "retried"
	if exhausted {
		result = "exhausted"
	}
	m.Conflicts.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveUpload(seconds float64) {
	if m == nil {
		return
	}
	m.UploadTiming.Observe(seconds)
}
