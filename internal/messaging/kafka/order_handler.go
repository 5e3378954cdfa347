package kafka

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/service/sales"
)

// OrderEventHandler принимает события заказов витрины.
type OrderEventHandler interface {
	HandleOrderEvent(ctx context.Context, event sales.OrderEvent) (sales.Result, error)
}

// NewOrderMessageHandler связывает topic событий заказов с обработчиком продаж.
// Нечитаемые и невалидные события сразу уходят в DLQ; ошибки хранилища повторяются.
func NewOrderMessageHandler(handler OrderEventHandler, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "order-event-consumer")
	}

	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := ParseOrderEvent(message)
		if err != nil {
			return Permanent(err)
		}

		result, err := handler.HandleOrderEvent(ctx, event)
		if err != nil {
			if sales.IsInvalidEvent(err) {
				return Permanent(err)
			}
			return err
		}

		logger.WithFields(log.Fields{
			"event_type": event.Type,
			"order_id":   result.OrderID,
			"outcome":    result.Outcome,
			"reason":     result.ReasonText(),
		}).Info("order event handled")
		return nil
	}
}
