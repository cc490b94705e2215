// Package metrics provides Prometheus metrics for spelling synchronization.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inventory-app/glossary-sync/pkg/repositories"
	"github.com/inventory-app/glossary-sync/pkg/services"
	"github.com/inventory-app/glossary-sync/pkg/services/workqueue"
)

const (
	bucketStart1ms = 0.001
	bucketFactor2  = 2
	bucketCount15  = 15
)

// SyncMetrics contains Prometheus metrics for sync runs, the work queue and the notification listener.
type SyncMetrics struct {
	syncRunsTotal     *prometheus.CounterVec
	syncDuration      *prometheus.HistogramVec
	linksAddedTotal   *prometheus.CounterVec
	linksRemovedTotal *prometheus.CounterVec

	queueEnqueuedTotal *prometheus.CounterVec
	queueFinishedTotal *prometheus.CounterVec
	queueTaskDuration  *prometheus.HistogramVec
	queueRetriesTotal  *prometheus.CounterVec

	notificationsTotal *prometheus.CounterVec
	listenerReconnects prometheus.Counter

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

var (
	_ services.SyncRecorder = (*SyncMetrics)(nil)
	_ workqueue.Observer    = (*SyncMetrics)(nil)
)

// NewSyncMetrics creates and registers new sync metrics.
func NewSyncMetrics(registry prometheus.Registerer) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() {
	m.syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glossary_sync_runs_total",
			Help: "Total number of link synchronization runs",
		},
		[]string{"kind", "outcome"}, // kind: item_translation, glossary_spelling; outcome: synced, missing, failed
	)

	m.syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glossary_sync_run_duration_seconds",
			Help:    "Time taken by one link synchronization run",
			Buckets: prometheus.ExponentialBuckets(bucketStart1ms, bucketFactor2, bucketCount15), // 1ms to ~16s
		},
		[]string{"kind"},
	)

	m.linksAddedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glossary_sync_links_added_total",
			Help: "Total number of item translation spelling links inserted",
		},
		[]string{"kind"},
	)

	m.linksRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glossary_sync_links_removed_total",
			Help: "Total number of item translation spelling links deleted",
		},
		[]string{"kind"},
	)

	m.queueEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glossary_sync_queue_enqueued_total",
			Help: "Total number of enqueue calls by result",
		},
		[]string{"task", "result"}, // result: accepted, merged, duplicate, locked, rejected
	)

	m.queueFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glossary_sync_queue_finished_total",
			Help: "Total number of tasks that reached a terminal state",
		},
		[]string{"task", "status"},
	)

	m.queueTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "glossary_sync_queue_task_duration_seconds",
			Help:    "Time from task start to its terminal state, including retries",
			Buckets: prometheus.ExponentialBuckets(bucketStart1ms, bucketFactor2, bucketCount15),
		},
		[]string{"task"},
	)

	m.queueRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glossary_sync_queue_retries_total",
			Help: "Total number of task retries after transient failures",
		},
		[]string{"task"},
	)

	m.notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "glossary_sync_notifications_total",
			Help: "Total number of database notifications received",
		},
		[]string{"entity", "status"}, // status: dispatched, invalid
	)

	m.listenerReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "glossary_sync_listener_reconnects_total",
		Help: "Total number of notification listener reconnect attempts",
	})

	m.collectors = []prometheus.Collector{
		m.syncRunsTotal,
		m.syncDuration,
		m.linksAddedTotal,
		m.linksRemovedTotal,
		m.queueEnqueuedTotal,
		m.queueFinishedTotal,
		m.queueTaskDuration,
		m.queueRetriesTotal,
		m.notificationsTotal,
		m.listenerReconnects,
	}
}

// Describe implements the Collector interface
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordSync records one sync run.
func (m *SyncMetrics) RecordSync(kind, outcome string, duration time.Duration, delta repositories.LinkDelta) {
	m.syncRunsTotal.WithLabelValues(kind, outcome).Inc()
	m.syncDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if delta.Added > 0 {
		m.linksAddedTotal.WithLabelValues(kind).Add(float64(delta.Added))
	}
	if delta.Removed > 0 {
		m.linksRemovedTotal.WithLabelValues(kind).Add(float64(delta.Removed))
	}
}

// TaskEnqueued records the result of an enqueue call.
func (m *SyncMetrics) TaskEnqueued(name string, result workqueue.EnqueueResult) {
	m.queueEnqueuedTotal.WithLabelValues(name, string(result)).Inc()
}

// TaskFinished records a task reaching a terminal state.
func (m *SyncMetrics) TaskFinished(name string, status workqueue.TaskStatus, duration time.Duration, retries int) {
	m.queueFinishedTotal.WithLabelValues(name, string(status)).Inc()
	if duration > 0 {
		m.queueTaskDuration.WithLabelValues(name).Observe(duration.Seconds())
	}
	if retries > 0 {
		m.queueRetriesTotal.WithLabelValues(name).Add(float64(retries))
	}
}

// RecordNotification records a received database notification.
func (m *SyncMetrics) RecordNotification(entity, status string) {
	m.notificationsTotal.WithLabelValues(entity, status).Inc()
}

// RecordListenerReconnect records a listener reconnect attempt.
func (m *SyncMetrics) RecordListenerReconnect() {
	m.listenerReconnects.Inc()
}
