package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks region registry activity.
type Metrics struct {
	RegionsCreated prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		RegionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kvault_regions_created_total",
			Help: "Total number of regions created",
		}),
	}
}

func (m *Metrics) IncrementRegionsCreated() {
	if m == nil {
		return
	}
	m.RegionsCreated.Inc()
}
