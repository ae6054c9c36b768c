package metrics

import (
	"time"

	"smartcrm-hq/conductor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// QueueMetrics tracks the batching task queue.
//
// Metrics:
//   - conductor_queue_tasks: tasks by state
//   - conductor_queue_batches_total: dispatched batches by task type
//   - conductor_queue_batch_size: tasks per dispatched batch
//   - conductor_queue_retries_total: retried attempts by task type
//   - conductor_rate_limit_denials_total: deferred work by component
//   - conductor_queue_task_duration_seconds: attempt duration by type and status
type QueueMetrics struct {
	tasks            *prometheus.GaugeVec
	batchesTotal     *prometheus.CounterVec
	batchSize        prometheus.Histogram
	retriesTotal     *prometheus.CounterVec
	rateLimitDenials *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
}

// NewQueueMetrics creates and registers queue metrics with the provided registry.
func NewQueueMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *QueueMetrics {
	qm := &QueueMetrics{
		tasks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_tasks",
				Help:      "Number of queue tasks by state",
			},
			[]string{"state"},
		),

		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_batches_total",
				Help:      "Total number of dispatched batches",
			},
			[]string{"type"},
		),

		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_batch_size",
				Help:      "Number of tasks per dispatched batch",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_retries_total",
				Help:      "Total number of task retries",
			},
			[]string{"type"},
		),

		rateLimitDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rate_limit_denials_total",
				Help:      "Total number of rate limit denials",
			},
			[]string{"component"},
		),

		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queue_task_duration_seconds",
				Help:      "Duration of task attempts in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"type", "status"},
		),
	}

	registry.MustRegister(
		qm.tasks,
		qm.batchesTotal,
		qm.batchSize,
		qm.retriesTotal,
		qm.rateLimitDenials,
		qm.taskDuration,
	)

	return qm
}

// SetTasks sets the task count for state.
func (qm *QueueMetrics) SetTasks(state string, n int) {
	qm.tasks.WithLabelValues(state).Set(float64(n))
}

// RecordBatch records a dispatched batch of size tasks.
func (qm *QueueMetrics) RecordBatch(taskType string, size int) {
	qm.batchesTotal.WithLabelValues(taskType).Inc()
	qm.batchSize.Observe(float64(size))
}

// RecordRetry records a retried task.
func (qm *QueueMetrics) RecordRetry(taskType string) {
	qm.retriesTotal.WithLabelValues(taskType).Inc()
}

// RecordRateLimitDenial records a rate limit denial.
func (qm *QueueMetrics) RecordRateLimitDenial(component string) {
	qm.rateLimitDenials.WithLabelValues(component).Inc()
}

// RecordTaskDuration records a finished attempt.
func (qm *QueueMetrics) RecordTaskDuration(taskType, status string, d time.Duration) {
	qm.taskDuration.WithLabelValues(taskType, status).Observe(d.Seconds())
}
