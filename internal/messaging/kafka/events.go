package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/positsync/internal/service/sales"
	"github.com/vladislavdragonenkov/positsync/internal/storefront"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicSyncEvents      = "posit.sync.events"
	TopicDeadLetterQueue = "posit.sync.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEventMessage — сообщение витрины о жизненном цикле заказа.
type OrderEventMessage struct {
	EventType sales.EventType `json:"event_type"`
	OrderID   string          `json:"order_id"`
	Order     json.RawMessage `json:"order"`
	Timestamp time.Time       `json:"timestamp"`
}

// ParseOrderEvent разбирает сообщение и переводит снимок заказа в доменный тип.
// order_id из конверта используется, если в самом заказе id не пришёл.
func ParseOrderEvent(message *sarama.ConsumerMessage) (sales.OrderEvent, error) {
	var envelope OrderEventMessage
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return sales.OrderEvent{}, fmt.Errorf("unmarshal order event: %w", err)
	}
	if envelope.EventType == "" {
		return sales.OrderEvent{}, fmt.Errorf("order event without event_type: %w", sales.ErrUnknownEvent)
	}

	payload, err := storefront.DecodeOrder(envelope.Order)
	if err != nil {
		return sales.OrderEvent{}, err
	}
	order := payload.ToDomain()
	if order.ID == "" {
		order.ID = envelope.OrderID
	}
	if order.ID == "" {
		order.ID = string(message.Key)
	}

	return sales.OrderEvent{Type: envelope.EventType, Order: order}, nil
}
