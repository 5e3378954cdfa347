package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Upsert сохраняет снимок заказа от витрины. SyncState существующей записи не меняется.
	Upsert(order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByStatus возвращает заказы в статусе status; limit <= 0 снимает ограничение.
	ListByStatus(status OrderStatus, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// ProductRepository — локальный каталог товаров с остатками.
type ProductRepository interface {
	Upsert(product Product) error
	Get(sku string) (Product, error)
	// GetMany возвращает найденные товары по SKU; отсутствующие просто не попадают в результат.
	GetMany(skus []string) (map[string]Product, error)
	// SetStock включает учёт остатков и записывает новое количество.
	SetStock(sku string, qty int) error
}

// NoteRepository хранит журнал аудита заказов.
type NoteRepository interface {
	Append(note OrderNote) error
	List(orderID string) ([]OrderNote, error)
}

// MarkerStore хранит именованные отметки времени, например время последней сверки.
type MarkerStore interface {
	// Get возвращает ErrMarkerNotFound, если отметка не записывалась.
	Get(name string) (time.Time, error)
	Set(name string, at time.Time) error
}
