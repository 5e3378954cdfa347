package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/metrics"
	"github.com/vladislavdragonenkov/positsync/internal/posit"
	"github.com/vladislavdragonenkov/positsync/internal/service/invoice"
)

// Gateway — удалённая сторона, принимающая чеки.
type Gateway interface {
	SubmitSale(ctx context.Context, doc invoice.Document) (domain.SaleAck, error)
	Configured() bool
}

// InventoryRefresher запускает сверку остатков после успешной продажи.
type InventoryRefresher interface {
	Refresh(ctx context.Context) error
}

// Config — параметры POS, которые попадают в каждый чек.
type Config struct {
	POSID     string
	VoucherID string
	// RefreshTimeout ограничивает сверку остатков после продажи.
	RefreshTimeout time.Duration
}

// Outcome — итог одной попытки отправки.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeRefunded Outcome = "refunded"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Result описывает, чем закончилась попытка. Reason заполнен для skipped и failed.
type Result struct {
	OrderID   string
	Outcome   Outcome
	Reason    error
	InvoiceID string
	StoreID   string
}

// ReasonText возвращает текст причины или пустую строку.
func (r Result) ReasonText() string {
	if r.Reason == nil {
		return ""
	}
	return r.Reason.Error()
}

const (
	defaultRefreshTimeout = 30 * time.Second
	lockPrefix            = "posit:order:"

	maxSaveRetries = 3
	baseSaveDelay  = 10 * time.Millisecond
)

// Synchronizer переводит заказ между состояниями синхронизации с POSIT.
// Все переходы одного заказа выполняются под блокировкой по его идентификатору.
type Synchronizer struct {
	cfg       Config
	orders    domain.OrderRepository
	notes     domain.NoteRepository
	outbox    domain.OutboxRepository
	gateway   Gateway
	locker    domain.Locker
	inventory InventoryRefresher
	logger    *log.Entry
	metrics   *metrics.SyncMetrics
	now       func() time.Time

	noticeOnce    sync.Once
	configMissing atomic.Bool
}

// Option настраивает Synchronizer.
type Option func(*Synchronizer)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// WithInventory включает сверку остатков после успешной продажи.
func WithInventory(r InventoryRefresher) Option {
	return func(s *Synchronizer) {
		s.inventory = r
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSynchronizer создаёт машину состояний синхронизации.
func NewSynchronizer(
	cfg Config,
	orders domain.OrderRepository,
	notes domain.NoteRepository,
	outbox domain.OutboxRepository,
	gateway Gateway,
	locker domain.Locker,
	opts ...Option,
) *Synchronizer {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	s := &Synchronizer{
		cfg:     cfg,
		orders:  orders,
		notes:   notes,
		outbox:  outbox,
		gateway: gateway,
		locker:  locker,
		logger:  log.New().WithField("component", "sales"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured сообщает, хватает ли параметров для обращения к POSIT.
func (s *Synchronizer) Configured() bool {
	return s.cfg.POSID != "" && s.gateway != nil && s.gateway.Configured()
}

// ConfigurationError возвращает ErrConfigurationMissing, если отправка уже упиралась в пустые настройки.
func (s *Synchronizer) ConfigurationError() error {
	if s.configMissing.Load() && !s.Configured() {
		return domain.ErrConfigurationMissing
	}
	return nil
}

// SubmitSale отправляет продажу. Повторная отправка уже проданного заказа отклоняется без обращения к POSIT.
func (s *Synchronizer) SubmitSale(ctx context.Context, orderID string) (Result, error) {
	return s.submit(ctx, orderID, invoice.InvoiceTypeDebit, false)
}

// SubmitRefund отправляет возврат со ссылкой на чек продажи.
func (s *Synchronizer) SubmitRefund(ctx context.Context, orderID string) (Result, error) {
	return s.submit(ctx, orderID, invoice.InvoiceTypeRefund, false)
}

func (s *Synchronizer) submit(ctx context.Context, orderID string, invoiceType invoice.InvoiceType, refundRequested bool) (Result, error) {
	if orderID == "" {
		return Result{}, domain.ErrOrderIDRequired
	}
	release, err := s.locker.Acquire(ctx, lockPrefix+orderID)
	if err != nil {
		return Result{}, fmt.Errorf("acquire order lock: %w", err)
	}
	defer release()

	order, err := s.orders.Get(orderID)
	if err != nil {
		return Result{}, err
	}
	if refundRequested && order.Sync.RefundRequestedAt == nil {
		requestedAt := s.now()
		if err := s.persistSync(&order, func(st *domain.SyncState) {
			st.RefundRequestedAt = &requestedAt
		}, ""); err != nil {
			return Result{}, err
		}
	}

	typeLabel := invoiceType.String()
	result := Result{OrderID: orderID}

	if err := s.checkPreconditions(order, invoiceType); err != nil {
		s.addNote(order.ID, domain.NoteKindSkipped, skipMessage(order, err))
		if s.metrics != nil {
			s.metrics.RecordSubmitSkipped(typeLabel, reasonLabel(err))
		}
		s.logger.WithFields(log.Fields{
			"order_id":     order.ID,
			"invoice_type": typeLabel,
			"reason":       err.Error(),
		}).Info("posit submission skipped")
		result.Outcome = OutcomeSkipped
		result.Reason = err
		return result, nil
	}

	if invoiceType == invoice.InvoiceTypeRefund {
		s.addNote(order.ID, domain.NoteKindInfo, "Sending Order to POSIT API for refund")
	} else {
		s.addNote(order.ID, domain.NoteKindInfo, "Sending Order to POSIT API")
	}

	if !s.Configured() {
		s.reportMissingConfiguration(order.ID)
		if s.metrics != nil {
			s.metrics.RecordSubmitSkipped(typeLabel, "configuration")
		}
		result.Outcome = OutcomeSkipped
		result.Reason = domain.ErrConfigurationMissing
		return result, nil
	}
	s.configMissing.Store(false)

	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordSubmitStarted(typeLabel)
		defer func() {
			s.metrics.RecordSubmitFinished(typeLabel, time.Since(start))
		}()
	}

	doc, err := invoice.Build(order, s.cfg.POSID, s.cfg.VoucherID, invoiceType)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("build posit document failed")
		return s.fail(&order, invoiceType, err)
	}

	ack, err := s.gateway.SubmitSale(ctx, doc)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":     order.ID,
			"invoice_type": typeLabel,
		}).Warn("posit submission failed")
		return s.fail(&order, invoiceType, err)
	}
	return s.succeed(ctx, &order, invoiceType, ack)
}

func (s *Synchronizer) checkPreconditions(order domain.Order, invoiceType invoice.InvoiceType) error {
	if invoiceType == invoice.InvoiceTypeRefund {
		return order.Sync.CheckRefund()
	}
	return order.Sync.CheckSale()
}

func (s *Synchronizer) reportMissingConfiguration(orderID string) {
	s.configMissing.Store(true)
	s.addNote(orderID, domain.NoteKindFailure, "Error: Missing parameters. Please check your settings.")
	s.noticeOnce.Do(func() {
		s.logger.WithError(domain.ErrConfigurationMissing).
			Error("POSIT integration is not configured: set api key, tenant url and pos id")
	})
}

func (s *Synchronizer) fail(order *domain.Order, invoiceType invoice.InvoiceType, cause error) (Result, error) {
	typeLabel := invoiceType.String()
	if s.metrics != nil {
		s.metrics.RecordSubmitFailed(typeLabel, reasonLabel(cause))
	}

	attemptAt := s.now()
	if err := s.persistSync(order, func(st *domain.SyncState) {
		st.LastError = cause.Error()
		st.LastAttemptAt = &attemptAt
	}, domain.OrderStatusFailed); err != nil {
		return Result{}, err
	}

	s.addNote(order.ID, domain.NoteKindFailure, failureMessage(cause))

	eventType := domain.EventPositSaleFailed
	if invoiceType == invoice.InvoiceTypeRefund {
		eventType = domain.EventPositRefundFailed
	}
	s.emitEvent(order, eventType, map[string]interface{}{
		"reason": cause.Error(),
		"ts":     attemptAt.Format(time.RFC3339Nano),
	})

	return Result{OrderID: order.ID, Outcome: OutcomeFailed, Reason: cause}, nil
}

func (s *Synchronizer) succeed(ctx context.Context, order *domain.Order, invoiceType invoice.InvoiceType, ack domain.SaleAck) (Result, error) {
	refund := invoiceType == invoice.InvoiceTypeRefund
	attemptAt := s.now()

	// после ручной повторной отправки заказ возвращается из failed
	var restore domain.OrderStatus
	if order.Status == domain.OrderStatusFailed {
		restore = domain.OrderStatusCompleted
		if refund {
			restore = domain.OrderStatusRefunded
		}
	}

	if err := s.persistSync(order, func(st *domain.SyncState) {
		if refund {
			st.RefundSent = true
		} else {
			st.SaleSent = true
			st.DebitInvoiceID = ack.InvoiceID
			st.DebitStoreID = ack.StoreID
		}
		st.LastError = ""
		st.LastAttemptAt = &attemptAt
	}, restore); err != nil {
		return Result{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordSubmitSucceeded(invoiceType.String())
	}

	result := Result{OrderID: order.ID, InvoiceID: ack.InvoiceID, StoreID: ack.StoreID}
	payload := map[string]interface{}{
		"invoice_id": ack.InvoiceID,
		"store_id":   ack.StoreID,
		"ts":         attemptAt.Format(time.RFC3339Nano),
	}
	if refund {
		result.Outcome = OutcomeRefunded
		s.addNote(order.ID, domain.NoteKindSuccess, fmt.Sprintf(
			"Order #%s Successfully Sent to POSIT for refund %s | invoice ID: %s", order.ID, ack.Message, ack.InvoiceID))
		s.refreshInventory(ctx, order.ID)
		s.emitEvent(order, domain.EventPositRefundSent, payload)
		return result, nil
	}

	result.Outcome = OutcomeSent
	if ack.InvoiceID == "" {
		s.logger.WithField("order_id", order.ID).Warn("posit accepted sale without invoice id, refund will be impossible")
	}
	s.refreshInventory(ctx, order.ID)
	s.addNote(order.ID, domain.NoteKindSuccess, fmt.Sprintf(
		"Order #%s Successfully Sent to POSIT %s | invoice ID: %s", order.ID, ack.Message, ack.InvoiceID))
	s.emitEvent(order, domain.EventPositSaleSent, payload)
	return result, nil
}

func (s *Synchronizer) refreshInventory(ctx context.Context, orderID string) {
	if s.inventory == nil {
		return
	}
	refreshCtx, cancel := context.WithTimeout(ctx, s.cfg.RefreshTimeout)
	defer cancel()
	if err := s.inventory.Refresh(refreshCtx); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("inventory refresh after posit submit failed")
	}
}

func skipMessage(order domain.Order, reason error) string {
	number := order.DisplayNumber()
	switch {
	case errors.Is(reason, domain.ErrAlreadySent):
		return fmt.Sprintf("Order #%s Already Sent to POSIT", number)
	case errors.Is(reason, domain.ErrNotYetSold):
		return fmt.Sprintf("Order #%s Cannot be refunded to POSIT, it was not sent to POSIT for charge", number)
	case errors.Is(reason, domain.ErrAlreadyRefunded):
		return fmt.Sprintf("Order #%s Already Sent to POSIT for refund", number)
	case errors.Is(reason, domain.ErrMissingInvoiceLinkage) && order.Sync.DebitInvoiceID == "":
		return fmt.Sprintf("Order #%s Cannot be refunded to POSIT, cannot find debit invoice number", number)
	case errors.Is(reason, domain.ErrMissingInvoiceLinkage):
		return fmt.Sprintf("Order #%s Cannot be refunded to POSIT, cannot find debit sale's store ID", number)
	default:
		return fmt.Sprintf("Order #%s was not sent to POSIT: %s", number, reason)
	}
}

// failureMessage одинаков для продажи и возврата.
func failureMessage(cause error) string {
	if errors.Is(cause, domain.ErrRemoteRejected) {
		text := strings.TrimPrefix(cause.Error(), domain.ErrRemoteRejected.Error()+": ")
		return fmt.Sprintf("Error while sending Sale to POSIT: %s", text)
	}
	return "Error while sending Sale to POSIT, check logs for more details, this could be because of incorrect API key or tenant."
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadySent):
		return "already_sent"
	case errors.Is(err, domain.ErrNotYetSold):
		return "not_yet_sold"
	case errors.Is(err, domain.ErrAlreadyRefunded):
		return "already_refunded"
	case errors.Is(err, domain.ErrMissingInvoiceLinkage):
		return "missing_linkage"
	case errors.Is(err, domain.ErrRemoteRejected):
		return "rejected"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed"
	case posit.IsTimeout(err):
		return "timeout"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	default:
		return "invalid_document"
	}
}
