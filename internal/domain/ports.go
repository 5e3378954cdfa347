package domain

import (
	"context"
	"time"
)

// SaleAck — подтверждение POSIT о принятом чеке.
type SaleAck struct {
	InvoiceID string
	StoreID   string
	Message   string
}

// Locker сериализует переходы состояния по одному заказу.
type Locker interface {
	// Acquire блокирует ключ до вызова release или отмены ctx.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Notifier доставляет оператору отчёт о заказах, которые не ушли в POSIT.
type Notifier interface {
	NotifyFailedOrders(ctx context.Context, orders []Order) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// DeliveryRepository хранит состояние обработки вебхуков по delivery id.
type DeliveryRepository interface {
	CreateProcessing(key, payloadHash string, expiresAt time.Time) (WebhookDelivery, error)
	Get(key string) (WebhookDelivery, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// Типы событий, которые сервис публикует через outbox.
const (
	EventPositSaleSent     = "PositSaleSent"
	EventPositSaleFailed   = "PositSaleFailed"
	EventPositRefundSent   = "PositRefundSent"
	EventPositRefundFailed = "PositRefundFailed"
	EventStockUpdated      = "StockUpdated"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
