package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/metrics"
)

// Source отдаёт полный снимок остатков POSIT.
type Source interface {
	FetchInventory(ctx context.Context) ([]domain.InventoryItem, error)
	Configured() bool
}

// Config — параметры сверки.
type Config struct {
	InventoryType            domain.InventoryType
	OffsetByProcessingOrders bool
}

// Report — итог одного прогона сверки.
type Report struct {
	Fetched   int
	Updated   int
	Unchanged int
	StartedAt time.Time
}

const lockKey = "posit:inventory"

// Reconciler загружает остатки POSIT и записывает их в локальный каталог.
// Одновременно выполняется не больше одного прогона.
type Reconciler struct {
	cfg      Config
	source   Source
	products domain.ProductRepository
	orders   domain.OrderRepository
	markers  domain.MarkerStore
	outbox   domain.OutboxRepository
	locker   domain.Locker
	logger   *log.Entry
	metrics  *metrics.SyncMetrics
	now      func() time.Time

	mu sync.Mutex
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithOutbox включает публикацию StockUpdated.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(r *Reconciler) {
		r.outbox = outbox
	}
}

// WithLocker добавляет распределённую блокировку поверх локальной.
func WithLocker(locker domain.Locker) Option {
	return func(r *Reconciler) {
		r.locker = locker
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler создаёт сверку остатков.
func NewReconciler(
	cfg Config,
	source Source,
	products domain.ProductRepository,
	orders domain.OrderRepository,
	markers domain.MarkerStore,
	opts ...Option,
) *Reconciler {
	if !cfg.InventoryType.Valid() {
		cfg.InventoryType = domain.InventoryTypeStore
	}
	r := &Reconciler{
		cfg:      cfg,
		source:   source,
		products: products,
		orders:   orders,
		markers:  markers,
		logger:   log.New().WithField("component", "inventory"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh запускает прогон и отбрасывает отчёт.
func (r *Reconciler) Refresh(ctx context.Context) error {
	_, err := r.Run(ctx)
	return err
}

// Run выполняет один прогон. Отметка времени записывается только если все записи прошли;
// частично применённый прогон повторится при следующем запуске.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, lockKey)
		if err != nil {
			return Report{}, fmt.Errorf("acquire inventory lock: %w", err)
		}
		defer release()
	}

	report := Report{StartedAt: r.now()}
	if r.source == nil || !r.source.Configured() {
		r.record("skipped")
		return report, domain.ErrConfigurationMissing
	}

	items, err := r.source.FetchInventory(ctx)
	if err != nil {
		r.record("error")
		r.logger.WithError(err).Warn("fetch posit inventory failed")
		return report, err
	}
	report.Fetched = len(items)
	if len(items) == 0 {
		r.record("empty")
		r.logger.Warn("No data received from POSIT")
		return report, nil
	}

	var reservations domain.Reservations
	if r.cfg.OffsetByProcessingOrders {
		processing, err := r.orders.ListByStatus(domain.OrderStatusProcessing, 0)
		if err != nil {
			r.record("error")
			return report, fmt.Errorf("list processing orders: %w", err)
		}
		reservations = domain.ReservationsFrom(processing)
	}

	skus := make([]string, 0, len(items))
	for _, item := range items {
		skus = append(skus, item.SKU)
	}
	products, err := r.products.GetMany(skus)
	if err != nil {
		r.record("error")
		return report, fmt.Errorf("load products: %w", err)
	}

	updates := Reconcile(items, products, reservations, r.cfg.InventoryType, r.cfg.OffsetByProcessingOrders)
	report.Unchanged = len(products) - len(updates)

	var errs []error
	applied := make([]domain.StockUpdate, 0, len(updates))
	for _, update := range updates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.products.SetStock(update.SKU, update.Quantity); err != nil {
			errs = append(errs, fmt.Errorf("set stock %s: %w", update.SKU, err))
			continue
		}
		applied = append(applied, update)
	}
	report.Updated = len(applied)
	if r.metrics != nil {
		r.metrics.RecordStockUpdates(len(applied))
	}
	r.emitStockUpdated(applied, report.StartedAt)

	if len(errs) > 0 {
		r.record("partial")
		err := errors.Join(errs...)
		r.logger.WithError(err).WithFields(log.Fields{
			"updated": report.Updated,
			"failed":  len(errs),
		}).Warn("inventory reconciliation partially applied")
		return report, err
	}

	if err := r.markers.Set(domain.MarkerInventorySync, report.StartedAt); err != nil {
		r.record("error")
		return report, fmt.Errorf("set inventory marker: %w", err)
	}
	r.record("success")
	r.logger.WithFields(log.Fields{
		"fetched":   report.Fetched,
		"updated":   report.Updated,
		"unchanged": report.Unchanged,
	}).Info("inventory reconciled")
	return report, nil
}

// LastRun возвращает время последнего успешного прогона. ErrMarkerNotFound, если его не было.
func (r *Reconciler) LastRun() (time.Time, error) {
	return r.markers.Get(domain.MarkerInventorySync)
}

// ResetMarker сбрасывает отметку, чтобы следующий запуск воркера сразу выполнил сверку.
func (r *Reconciler) ResetMarker() error {
	return r.markers.Set(domain.MarkerInventorySync, time.Time{})
}

func (r *Reconciler) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordInventoryRun(outcome, r.now())
	}
}

type stockUpdatedPayload struct {
	Updates []stockUpdatedItem `json:"updates"`
	TS      string             `json:"ts"`
}

type stockUpdatedItem struct {
	SKU      string `json:"sku"`
	Previous *int   `json:"previous,omitempty"`
	Quantity int    `json:"quantity"`
}

func (r *Reconciler) emitStockUpdated(updates []domain.StockUpdate, at time.Time) {
	if r.outbox == nil || len(updates) == 0 {
		return
	}
	payload := stockUpdatedPayload{
		Updates: make([]stockUpdatedItem, 0, len(updates)),
		TS:      at.Format(time.RFC3339Nano),
	}
	for _, u := range updates {
		payload.Updates = append(payload.Updates, stockUpdatedItem{SKU: u.SKU, Previous: u.Previous, Quantity: u.Quantity})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.WithError(err).Error("marshal stock event failed")
		return
	}
	msg := domain.OutboxMessage{
		AggregateType: "inventory",
		AggregateID:   string(r.cfg.InventoryType),
		EventType:     domain.EventStockUpdated,
		Payload:       data,
	}
	if _, err := r.outbox.Enqueue(msg); err != nil {
		r.logger.WithError(err).Error("enqueue stock event failed")
		return
	}
	if r.metrics != nil {
		r.metrics.RecordOutboxEvent()
	}
}
