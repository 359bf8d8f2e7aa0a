package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus counters for audit emission. A nil *Metrics is a no-op.
type Metrics struct {
	Recorded        prometheus.Counter
	Persisted       prometheus.Counter
	Dropped         prometheus.Counter
	PersistFailures prometheus.Counter
	BufferDepth     prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvault_audit_recorded_total",
			Help: "Total number of audit entries handed to the publisher",
		}),
		Persisted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvault_audit_persisted_total",
			Help: "Total number of audit entries written to the audit store",
		}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvault_audit_dropped_total",
			Help: "Total number of audit entries dropped because the buffer was full or closed",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvault_audit_persist_failures_total",
			Help: "Total number of audit entries the store rejected",
		}),
		BufferDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kvault_audit_buffer_depth",
			Help: "Audit entries waiting in the async buffer",
		}),
	}
}

func (m *Metrics) IncRecorded() {
	if m != nil {
		m.Recorded.Inc()
	}
}

func (m *Metrics) IncPersisted() {
	if m != nil {
		m.Persisted.Inc()
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) SetBufferDepth(n int) {
	if m != nil {
		m.BufferDepth.Set(float64(n))
	}
}
