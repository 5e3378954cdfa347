package sales

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/service/invoice"
)

// EventType — тип события заказа, пришедшего от витрины.
type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderUpdated   EventType = "order.updated"
	EventOrderCompleted EventType = "order.completed"
	EventOrderCancelled EventType = "order.cancelled"
	EventOrderRefunded  EventType = "order.refunded"
)

var (
	// Тип события не поддерживается.
	ErrUnknownEvent = errors.New("unknown order event type")
	// Отправка продаж выключена настройкой.
	ErrSalesInterfaceDisabled = errors.New("sales interface is disabled")
	// Снимок заказа нарушает инварианты и не сохраняется.
	ErrInvalidSnapshot = errors.New("invalid order snapshot")
)

// IsInvalidEvent сообщает, что событие нельзя обработать ни сейчас, ни при повторе.
func IsInvalidEvent(err error) bool {
	return errors.Is(err, ErrUnknownEvent) || errors.Is(err, ErrInvalidSnapshot)
}

// OrderEvent — снимок заказа и событие, которое его породило.
type OrderEvent struct {
	Type  EventType
	Order domain.Order
}

// Dispatcher сохраняет снимки заказов и запускает отправку на переходах статуса.
type Dispatcher struct {
	sync    *Synchronizer
	orders  domain.OrderRepository
	enabled bool
	logger  *log.Entry
}

// NewDispatcher создаёт обработчик событий. enabled соответствует enable_sales_interface.
func NewDispatcher(sync *Synchronizer, orders domain.OrderRepository, enabled bool, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.New().WithField("component", "sales-dispatcher")
	}
	return &Dispatcher{sync: sync, orders: orders, enabled: enabled, logger: logger}
}

// HandleOrderEvent сохраняет снимок и, если статус сменился на completed, cancelled или refunded,
// отправляет продажу или возврат. Для order.created и order.updated без смены статуса
// только обновляется локальный снимок.
func (d *Dispatcher) HandleOrderEvent(ctx context.Context, event OrderEvent) (Result, error) {
	order := event.Order
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, errors.Join(errs...))
	}

	previous, err := d.orders.Get(order.ID)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		previous = domain.Order{}
	case err != nil:
		return Result{}, err
	}

	switch event.Type {
	case EventOrderCompleted:
		order.Status = domain.OrderStatusCompleted
	case EventOrderCancelled:
		order.Status = domain.OrderStatusCancelled
	case EventOrderRefunded:
		order.Status = domain.OrderStatusRefunded
	case EventOrderCreated, EventOrderUpdated:
		// failed держится до ручной повторной отправки или нового перехода статуса
		if previous.Status == domain.OrderStatusFailed && order.Status == domain.OrderStatusCompleted {
			order.Status = domain.OrderStatusFailed
		}
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event.Type)
	}

	stored, err := d.orders.Upsert(order)
	if err != nil {
		return Result{}, err
	}

	explicit := event.Type != EventOrderCreated && event.Type != EventOrderUpdated
	if !explicit && previous.Status == stored.Status {
		return Result{OrderID: stored.ID, Outcome: OutcomeSkipped}, nil
	}

	switch stored.Status {
	case domain.OrderStatusCompleted:
		return d.sale(ctx, stored.ID, "completed")
	case domain.OrderStatusCancelled:
		return d.refund(ctx, stored.ID, "cancelled")
	case domain.OrderStatusRefunded:
		return d.refund(ctx, stored.ID, "refunded")
	default:
		return Result{OrderID: stored.ID, Outcome: OutcomeSkipped}, nil
	}
}

// OnOrderCompleted сохраняет снимок и отправляет продажу.
func (d *Dispatcher) OnOrderCompleted(ctx context.Context, order domain.Order) (Result, error) {
	return d.HandleOrderEvent(ctx, OrderEvent{Type: EventOrderCompleted, Order: order})
}

// OnOrderCancelled сохраняет снимок, отмечает запрос возврата и отправляет его.
func (d *Dispatcher) OnOrderCancelled(ctx context.Context, order domain.Order) (Result, error) {
	return d.HandleOrderEvent(ctx, OrderEvent{Type: EventOrderCancelled, Order: order})
}

// OnOrderRefunded ведёт себя так же, как отмена.
func (d *Dispatcher) OnOrderRefunded(ctx context.Context, order domain.Order) (Result, error) {
	return d.HandleOrderEvent(ctx, OrderEvent{Type: EventOrderRefunded, Order: order})
}

func (d *Dispatcher) sale(ctx context.Context, orderID, transition string) (Result, error) {
	if !d.enabled {
		return d.disabled(orderID, transition), nil
	}
	return d.sync.SubmitSale(ctx, orderID)
}

func (d *Dispatcher) refund(ctx context.Context, orderID, transition string) (Result, error) {
	if !d.enabled {
		return d.disabled(orderID, transition), nil
	}
	return d.sync.submit(ctx, orderID, invoice.InvoiceTypeRefund, true)
}

func (d *Dispatcher) disabled(orderID, transition string) Result {
	d.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"transition": transition,
	}).Debug("sales interface disabled, transition ignored")
	return Result{OrderID: orderID, Outcome: OutcomeSkipped, Reason: ErrSalesInterfaceDisabled}
}
