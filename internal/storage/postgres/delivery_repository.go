package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

const defaultDeliveryTTL = 24 * time.Hour

type deliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository создаёт PostgreSQL-реализацию DeliveryRepository.
func NewDeliveryRepository(store *Store) domain.DeliveryRepository {
	return &deliveryRepository{db: store.DB()}
}

// CreateProcessing регистрирует доставку. Повтор с тем же ключом возвращает
// существующую запись вместе с ErrDeliveryAlreadyExists или ErrDeliveryHashMismatch.
func (r *deliveryRepository) CreateProcessing(key, payloadHash string, expiresAt time.Time) (domain.WebhookDelivery, error) {
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

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (
			key, payload_hash, status, expires_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6)
	`, key, payloadHash, string(domain.DeliveryStatusProcessing), expiresAt, now, now)
	if err != nil {
		if !isUniqueViolation(err) {
			return domain.WebhookDelivery{}, fmt.Errorf("create webhook delivery: %w", err)
		}
		existing, getErr := r.Get(key)
		if getErr != nil {
			return domain.WebhookDelivery{}, domain.ErrDeliveryAlreadyExists
		}
		if existing.PayloadHash != payloadHash {
			return existing, domain.ErrDeliveryHashMismatch
		}
		return existing, domain.ErrDeliveryAlreadyExists
	}

	return domain.WebhookDelivery{
		Key:         key,
		PayloadHash: payloadHash,
		Status:      domain.DeliveryStatusProcessing,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *deliveryRepository) Get(key string) (domain.WebhookDelivery, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.WebhookDelivery{}, domain.ErrDeliveryKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		record     domain.WebhookDelivery
		status     string
		body       []byte
		httpStatus sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT key, payload_hash, response_body, http_status, status, expires_at, created_at, updated_at
		FROM webhook_deliveries
		WHERE key = $1
	`, key).Scan(
		&record.Key, &record.PayloadHash, &body, &httpStatus, &status,
		&record.ExpiresAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WebhookDelivery{}, domain.ErrDeliveryNotFound
		}
		return domain.WebhookDelivery{}, fmt.Errorf("get webhook delivery: %w", err)
	}

	record.Status = domain.DeliveryStatus(status)
	if !record.Status.Valid() {
		return domain.WebhookDelivery{}, fmt.Errorf("invalid delivery status %q for key %s", status, key)
	}
	record.ResponseBody = append([]byte(nil), body...)
	if httpStatus.Valid {
		record.HTTPStatus = int(httpStatus.Int64)
	}

	return record, nil
}

func (r *deliveryRepository) MarkDone(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.DeliveryStatusDone, responseBody, httpStatus)
}

func (r *deliveryRepository) MarkFailed(key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.DeliveryStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет не больше limit записей с истёкшим сроком; limit <= 0 снимает ограничение.
func (r *deliveryRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM webhook_deliveries
			WHERE key IN (
				SELECT key
				FROM webhook_deliveries
				WHERE expires_at <= $1
				ORDER BY expires_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE expires_at <= $1`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired webhook deliveries: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delivery rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *deliveryRepository) markStatus(key string, status domain.DeliveryStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrDeliveryKeyRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET response_body = $1,
		    http_status = $2,
		    status = $3,
		    updated_at = $4
		WHERE key = $5
	`, responseBody, httpStatus, string(status), time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("mark webhook delivery %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delivery rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

var _ domain.DeliveryRepository = (*deliveryRepository)(nil)
