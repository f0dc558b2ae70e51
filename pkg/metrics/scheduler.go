package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initSchedulerMetrics initializes scheduling and update metrics.
func (m *Manager) initSchedulerMetrics(cfg Config) {
	m.scheduleRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "schedule_requests_total",
			Help: "Total number of completed schedule requests",
		},
	)

	m.scheduleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedule_duration_seconds",
			Help:    "Schedule request duration in seconds",
			Buckets: cfg.ScheduleDurationBuckets,
		},
	)

	m.scheduleBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "schedule_batch_size",
			Help:    "Number of candidate facts per schedule request",
			Buckets: cfg.BatchSizeBuckets,
		},
	)

	m.updateRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "update_requests_total",
			Help: "Total number of committed update batches",
		},
	)

	m.updateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "update_duration_seconds",
			Help:    "Update batch duration in seconds",
			Buckets: cfg.UpdateDurationBuckets,
		},
	)

	m.updateBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "update_batch_size",
			Help:    "Number of responses per update batch",
			Buckets: cfg.BatchSizeBuckets,
		},
	)

	m.registry.MustRegister(m.scheduleRequests)
	m.registry.MustRegister(m.scheduleDuration)
	m.registry.MustRegister(m.scheduleBatchSize)
	m.registry.MustRegister(m.updateRequests)
	m.registry.MustRegister(m.updateDuration)
	m.registry.MustRegister(m.updateBatchSize)
}

// ObserveSchedule records one completed schedule request.
func (m *Manager) ObserveSchedule(d time.Duration, facts int) {
	if !m.enabled {
		return
	}
	m.scheduleRequests.Inc()
	m.scheduleDuration.Observe(d.Seconds())
	m.scheduleBatchSize.Observe(float64(facts))
}

// ObserveUpdate records one committed update batch.
func (m *Manager) ObserveUpdate(d time.Duration, responses int) {
	if !m.enabled {
		return
	}
	m.updateRequests.Inc()
	m.updateDuration.Observe(d.Seconds())
	m.updateBatchSize.Observe(float64(responses))
}
