package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics содержит метрики обмена с POSIT.
type SyncMetrics struct {
	// Счётчики отправок по типу чека
	submitted *prometheus.CounterVec
	succeeded *prometheus.CounterVec
	failed    *prometheus.CounterVec
	skipped   *prometheus.CounterVec

	// Гистограммы времени выполнения
	submitDuration  *prometheus.HistogramVec
	requestDuration *prometheus.HistogramVec

	// Сверка остатков
	inventoryRuns    *prometheus.CounterVec
	stockUpdates     prometheus.Counter
	inventorySyncAge prometheus.Gauge

	notes        prometheus.Counter
	outboxEvents prometheus.Counter

	// Gauge для отправок в процессе
	inFlight prometheus.Gauge
}

// NewSyncMetrics создаёт метрики в DefaultRegisterer.
func NewSyncMetrics() *SyncMetrics {
	return NewSyncMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSyncMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SyncMetrics{
		submitted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "posit_submissions_total",
			Help: "Total number of sale and refund submissions attempted",
		}, []string{"invoice_type"}),
		succeeded: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "posit_submissions_succeeded_total",
			Help: "Total number of submissions accepted by POSIT",
		}, []string{"invoice_type"}),
		failed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "posit_submissions_failed_total",
			Help: "Total number of submissions that moved the order to failed",
		}, []string{"invoice_type", "reason"}),
		skipped: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "posit_submissions_skipped_total",
			Help: "Total number of submissions rejected before any network call",
		}, []string{"invoice_type", "reason"}),
		submitDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "posit_submission_duration_seconds",
			Help:    "Duration of submit flows in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"invoice_type"}),
		requestDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "posit_request_duration_seconds",
			Help:    "Duration of POSIT API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"endpoint", "outcome"}),
		inventoryRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "posit_inventory_runs_total",
			Help: "Total number of inventory reconciliation runs",
		}, []string{"outcome"}),
		stockUpdates: registerCounter(registerer, prometheus.CounterOpts{
			Name: "posit_stock_updates_total",
			Help: "Total number of stock quantities written from POSIT",
		}),
		inventorySyncAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "posit_inventory_last_success_timestamp_seconds",
			Help: "Unix time of the last successful inventory reconciliation",
		}),
		notes: registerCounter(registerer, prometheus.CounterOpts{
			Name: "posit_order_notes_total",
			Help: "Total number of audit notes appended to orders",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "posit_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "posit_submissions_in_flight",
			Help: "Number of submissions currently running",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSubmitStarted увеличивает счётчик попыток и число активных отправок.
func (m *SyncMetrics) RecordSubmitStarted(invoiceType string) {
	m.submitted.WithLabelValues(invoiceType).Inc()
	m.inFlight.Inc()
}

// RecordSubmitFinished уменьшает число активных отправок и пишет длительность.
func (m *SyncMetrics) RecordSubmitFinished(invoiceType string, duration time.Duration) {
	m.inFlight.Dec()
	m.submitDuration.WithLabelValues(invoiceType).Observe(duration.Seconds())
}

// RecordSubmitSucceeded увеличивает счётчик принятых POSIT чеков.
func (m *SyncMetrics) RecordSubmitSucceeded(invoiceType string) {
	m.succeeded.WithLabelValues(invoiceType).Inc()
}

// RecordSubmitFailed увеличивает счётчик неудачных отправок.
func (m *SyncMetrics) RecordSubmitFailed(invoiceType, reason string) {
	m.failed.WithLabelValues(invoiceType, reason).Inc()
}

// RecordSubmitSkipped увеличивает счётчик отправок, отклонённых проверками.
func (m *SyncMetrics) RecordSubmitSkipped(invoiceType, reason string) {
	m.skipped.WithLabelValues(invoiceType, reason).Inc()
}

// RecordRequest записывает длительность запроса к POSIT.
func (m *SyncMetrics) RecordRequest(endpoint, outcome string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint, outcome).Observe(duration.Seconds())
}

// RecordInventoryRun увеличивает счётчик сверок и при успехе обновляет отметку времени.
func (m *SyncMetrics) RecordInventoryRun(outcome string, at time.Time) {
	m.inventoryRuns.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		m.inventorySyncAge.Set(float64(at.Unix()))
	}
}

// RecordStockUpdates увеличивает счётчик записанных остатков.
func (m *SyncMetrics) RecordStockUpdates(n int) {
	m.stockUpdates.Add(float64(n))
}

// RecordNote увеличивает счётчик заметок аудита.
func (m *SyncMetrics) RecordNote() {
	m.notes.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SyncMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
