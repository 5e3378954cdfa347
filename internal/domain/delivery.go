package domain

import "time"

// DeliveryStatus описывает жизненный цикл доставки вебхука.
type DeliveryStatus string

const (
	// DeliveryStatusProcessing означает, что доставка принята и ещё обрабатывается.
	DeliveryStatusProcessing DeliveryStatus = "processing"
	// DeliveryStatusDone означает, что доставка обработана и ответ сохранён.
	DeliveryStatusDone DeliveryStatus = "done"
	// DeliveryStatusFailed означает, что обработка завершилась ошибкой.
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// WebhookDelivery хранит результат обработки вебхука по его delivery id.
// Повторная доставка с тем же id получает сохранённый ответ без повторной обработки.
type WebhookDelivery struct {
	Key          string
	PayloadHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       DeliveryStatus
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusProcessing, DeliveryStatusDone, DeliveryStatusFailed:
		return true
	default:
		return false
	}
}
