package sales

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// persistSync применяет mutate к флагам заказа и сохраняет его.
// При конфликте версий заказ перечитывается и mutate применяется к свежему снимку:
// витрина могла обновить заказ, но флаги синхронизации меняет только этот код.
func (s *Synchronizer) persistSync(order *domain.Order, mutate func(*domain.SyncState), status domain.OrderStatus) error {
	for attempt := 0; attempt < maxSaveRetries; attempt++ {
		next := *order
		mutate(&next.Sync)
		if status != "" {
			next.Status = status
		}
		next.UpdatedAt = s.now()

		err := s.orders.Save(next)
		if err == nil {
			next.Version = order.Version + 1
			*order = next
			return nil
		}
		if !domain.IsVersionConflict(err) || attempt == maxSaveRetries-1 {
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"attempt":  attempt + 1,
			}).Error("failed to persist sync state")
			return err
		}

		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		fresh, loadErr := s.orders.Get(order.ID)
		if loadErr != nil {
			s.logger.WithError(loadErr).WithField("order_id", order.ID).Error("failed to reload order after conflict")
			return loadErr
		}
		*order = fresh
		time.Sleep(baseSaveDelay * time.Duration(1<<uint(attempt)))
	}
	return domain.ErrOrderVersionConflict
}

func (s *Synchronizer) addNote(orderID string, kind domain.NoteKind, message string) {
	if s.notes == nil {
		return
	}
	note := domain.OrderNote{
		OrderID:  orderID,
		Kind:     kind,
		Message:  message,
		Occurred: s.now(),
	}
	if err := s.notes.Append(note); err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("append order note failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordNote()
	}
}

func (s *Synchronizer) emitEvent(order *domain.Order, eventType string, payload map[string]interface{}) {
	if s.outbox == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	payload["order_number"] = order.DisplayNumber()
	payload["sync_state"] = string(domain.DeriveState(order.Sync))
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := s.outbox.Enqueue(msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("enqueue event failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}
