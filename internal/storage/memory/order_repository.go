package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Upsert сохраняет снимок заказа. Для существующего заказа SyncState и CreatedAt сохраняются.
func (r *orderRepositoryInMemory) Upsert(order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if current, ok := r.items[order.ID]; ok {
		order.Sync = current.Sync
		order.CreatedAt = current.CreatedAt
		order.Version = current.Version + 1
	} else {
		order.Version = 0
		if order.CreatedAt.IsZero() {
			order.CreatedAt = now
		}
	}
	order.UpdatedAt = now
	stored := cloneOrder(order)
	r.items[order.ID] = stored
	return cloneOrder(stored), nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByStatus возвращает заказы в статусе, старые первыми, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByStatus(status domain.OrderStatus, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.items {
		if order.Status != status {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.items[order.ID] = cloneOrder(order)
	return nil
}

// cloneOrder копирует срез позиций и указатели, чтобы вызывающий не мутировал хранилище.
func cloneOrder(order domain.Order) domain.Order {
	if order.Lines != nil {
		lines := make([]domain.OrderLine, len(order.Lines))
		copy(lines, order.Lines)
		order.Lines = lines
	}
	order.Sync.RefundRequestedAt = cloneTime(order.Sync.RefundRequestedAt)
	order.Sync.LastAttemptAt = cloneTime(order.Sync.LastAttemptAt)
	return order
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
