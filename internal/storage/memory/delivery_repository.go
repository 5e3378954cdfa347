package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// defaultDeliveryTTL — сколько хранить запись о доставке, если срок не задан.
const defaultDeliveryTTL = 24 * time.Hour

type deliveryRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.WebhookDelivery
}

// NewDeliveryRepository создаёт in-memory реализацию DeliveryRepository.
func NewDeliveryRepository() domain.DeliveryRepository {
	return &deliveryRepositoryInMemory{
		items: make(map[string]domain.WebhookDelivery),
	}
}

func (r *deliveryRepositoryInMemory) CreateProcessing(key, payloadHash string, expiresAt time.Time) (domain.WebhookDelivery, error) {
	key = strings.TrimSpace(key)
	payloadHash = strings.TrimSpace(payloadHash)

	if key == "" {
		return domain.WebhookDelivery{}, domain.ErrDeliveryKeyRequired
	}
	if payloadHash == "" {
		return domain.WebhookDelivery{}, domain.ErrDeliveryHashRequired
	}

	now := time.Now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultDeliveryTTL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[key]; ok {
		if existing.PayloadHash != payloadHash {
			return cloneDelivery(existing), domain.ErrDeliveryHashMismatch
		}
		return cloneDelivery(existing), domain.ErrDeliveryAlreadyExists
	}

	record := domain.WebhookDelivery{
		Key:         key,
		PayloadHash: payloadHash,
		Status:      domain.DeliveryStatusProcessing,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.items[key] = cloneDelivery(record)
	return cloneDelivery(record), nil
}

func (r *deliveryRepositoryInMemory) Get(key string) (domain.WebhookDelivery, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.WebhookDelivery{}, domain.ErrDeliveryKeyRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.items[key]
	if !ok {
		return domain.WebhookDelivery{}, domain.ErrDeliveryNotFound
	}

	return cloneDelivery(record), nil
}

func (r *deliveryRepositoryInMemory) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.DeliveryStatusDone, responseBody, httpStatus)
}

func (r *deliveryRepositoryInMemory) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.DeliveryStatusFailed, responseBody, httpStatus)
}

func (r *deliveryRepositoryInMemory) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, record := range r.items {
		if record.ExpiresAt.After(before) {
			continue
		}

		delete(r.items, key)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

func (r *deliveryRepositoryInMemory) markStatus(key string, status domain.DeliveryStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrDeliveryKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[key]
	if !ok {
		return domain.ErrDeliveryNotFound
	}

	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = time.Now().UTC()
	r.items[key] = record

	return nil
}

func cloneDelivery(src domain.WebhookDelivery) domain.WebhookDelivery {
	dst := src
	dst.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return dst
}

var _ domain.DeliveryRepository = (*deliveryRepositoryInMemory)(nil)
