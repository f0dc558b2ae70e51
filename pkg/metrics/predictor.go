package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initPredictorMetrics initializes recall predictor metrics.
func (m *Manager) initPredictorMetrics(cfg Config) {
	m.predictorFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "predictor_fallbacks_total",
			Help: "Total number of recall predictions that fell back to the neutral score",
		},
	)

	m.registry.MustRegister(m.predictorFallbacks)
}

// PredictorFallback records one neutral-score fallback.
func (m *Manager) PredictorFallback() {
	if !m.enabled {
		return
	}
	m.predictorFallbacks.Inc()
}
