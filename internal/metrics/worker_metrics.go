package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics — метрики фоновых воркеров и входящих каналов.
type WorkerMetrics struct {
	outboxPublish   *prometheus.CounterVec
	outboxPending   prometheus.Gauge
	outboxOldestAge prometheus.Gauge

	cleanupRuns        *prometheus.CounterVec
	cleanupDeleted     prometheus.Counter
	cleanupLastDeleted prometheus.Gauge

	webhooks *prometheus.CounterVec
	consumed *prometheus.CounterVec
}

// NewWorkerMetrics создаёт метрики воркеров в DefaultRegisterer.
func NewWorkerMetrics() *WorkerMetrics {
	return NewWorkerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWorkerMetricsWithRegisterer создаёт метрики воркеров в указанном реестре.
func NewWorkerMetricsWithRegisterer(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &WorkerMetrics{
		outboxPublish: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "posit_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "posit_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "posit_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "posit_webhook_delivery_cleanup_runs_total",
			Help: "Total number of webhook delivery cleanup runs grouped by result",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "posit_webhook_delivery_cleanup_deleted_total",
			Help: "Total number of deleted expired webhook delivery records",
		}),
		cleanupLastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "posit_webhook_delivery_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run",
		}),
		webhooks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "posit_webhooks_total",
			Help: "Total number of storefront webhooks grouped by event and outcome",
		}, []string{"event", "outcome"}),
		consumed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "posit_order_events_consumed_total",
			Help: "Total number of order events consumed from kafka grouped by outcome",
		}, []string{"outcome"}),
	}
}

// RecordPublish учитывает попытку публикации из outbox.
func (m *WorkerMetrics) RecordPublish(result string) {
	m.outboxPublish.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер backlog и возраст самой старой записи.
func (m *WorkerMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	m.outboxPending.Set(float64(pending))
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.outboxOldestAge.Set(oldestAge.Seconds())
}

// RecordCleanup учитывает прогон очистки доставок вебхуков.
func (m *WorkerMetrics) RecordCleanup(result string, deleted int) {
	m.cleanupRuns.WithLabelValues(result).Inc()
	if result == "ok" {
		m.cleanupLastDeleted.Set(float64(deleted))
	}
}

// RecordCleanupDeleted увеличивает счётчик удалённых записей.
func (m *WorkerMetrics) RecordCleanupDeleted(n int) {
	if n > 0 {
		m.cleanupDeleted.Add(float64(n))
	}
}

// RecordWebhook учитывает входящий вебхук.
func (m *WorkerMetrics) RecordWebhook(event, outcome string) {
	m.webhooks.WithLabelValues(event, outcome).Inc()
}

// RecordConsumed учитывает сообщение, прочитанное из kafka.
func (m *WorkerMetrics) RecordConsumed(outcome string) {
	m.consumed.WithLabelValues(outcome).Inc()
}
