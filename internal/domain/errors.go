package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка при некорректном количестве в позиции (<= 0).
	ErrLineQtyInvalid = errors.New("line quantity must be greater than zero")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = errors.New("order status is invalid")
	// Ошибка отсутствующего SKU у товара.
	ErrProductSKURequired = errors.New("product sku is required")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrProductNotFound возвращается, если товар с таким SKU отсутствует локально.
	ErrProductNotFound = errors.New("product not found")
	// ErrMarkerNotFound возвращается, если отметка ещё ни разу не записывалась.
	ErrMarkerNotFound = errors.New("marker not found")
	// Заказ уже обрабатывается другим исполнителем.
	ErrLockNotAcquired = errors.New("order lock not acquired")
	// Ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Пустой delivery id.
	ErrDeliveryKeyRequired = errors.New("webhook delivery key is required")
	// Пустой хеш тела вебхука.
	ErrDeliveryHashRequired = errors.New("webhook payload hash is required")
	// Доставка вебхука с таким ключом уже зарегистрирована.
	ErrDeliveryAlreadyExists = errors.New("webhook delivery already exists")
	// Запись доставки не найдена.
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
	// Ключ доставки переиспользован с другим телом.
	ErrDeliveryHashMismatch = errors.New("webhook delivery payload mismatch")
)

// Ошибки обмена с POSIT. Любая из них переводит заказ в failed.
var (
	// Сетевая ошибка или таймаут при обращении к POSIT.
	ErrTransport = errors.New("posit transport error")
	// POSIT ответил success=false.
	ErrRemoteRejected = errors.New("posit rejected the request")
	// Ответ не JSON или в нём нет ожидаемых полей.
	ErrMalformedResponse = errors.New("posit response is malformed")
)

// Нарушения предусловий. Проверяются до сетевого вызова и не меняют состояние заказа.
var (
	ErrAlreadySent           = errors.New("order already sent to posit")
	ErrNotYetSold            = errors.New("order was not sent to posit for charge")
	ErrAlreadyRefunded       = errors.New("order already sent to posit for refund")
	ErrMissingInvoiceLinkage = errors.New("debit invoice linkage is missing")
)

// ErrConfigurationMissing — не заданы api_key, tenant_url или pos_id.
var ErrConfigurationMissing = errors.New("posit configuration is missing")

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsPrecondition сообщает, что операция отклонена проверкой флагов синхронизации.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrAlreadySent) ||
		errors.Is(err, ErrNotYetSold) ||
		errors.Is(err, ErrAlreadyRefunded) ||
		errors.Is(err, ErrMissingInvoiceLinkage)
}

// IsRemoteFailure сообщает, что ошибка пришла со стороны POSIT или транспорта.
func IsRemoteFailure(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrRemoteRejected) ||
		errors.Is(err, ErrMalformedResponse)
}

// IsDeliveryConflict проверяет конфликт повторной доставки вебхука.
func IsDeliveryConflict(err error) bool {
	return errors.Is(err, ErrDeliveryAlreadyExists) || errors.Is(err, ErrDeliveryHashMismatch)
}
