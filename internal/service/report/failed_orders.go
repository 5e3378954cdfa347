package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

const (
	defaultInterval = 24 * time.Hour
	defaultLimit    = 500
)

// Options задаёт параметры отчёта.
type Options struct {
	Logger   *log.Entry
	Interval time.Duration
	Limit    int
}

// Option настраивает FailedOrders.
type Option func(*Options)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт период отправки отчёта.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithLimit ограничивает число заказов в одном письме.
func WithLimit(limit int) Option {
	return func(opts *Options) {
		opts.Limit = limit
	}
}

// FailedOrders раз в интервал отправляет оператору список заказов в статусе failed.
type FailedOrders struct {
	orders   domain.OrderRepository
	notifier domain.Notifier
	enabled  bool
	logger   *log.Entry
	interval time.Duration
	limit    int
}

// NewFailedOrders создаёт отчёт. enabled соответствует настройке email_failed_sales.
func NewFailedOrders(orders domain.OrderRepository, notifier domain.Notifier, enabled bool, options ...Option) *FailedOrders {
	opts := Options{Interval: defaultInterval, Limit: defaultLimit}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "failed-orders-report")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	return &FailedOrders{
		orders:   orders,
		notifier: notifier,
		enabled:  enabled,
		logger:   opts.Logger,
		interval: opts.Interval,
		limit:    opts.Limit,
	}
}

// Run отправляет отчёт по таймеру до отмены ctx. Первый отчёт уходит через interval после старта.
func (r *FailedOrders) Run(ctx context.Context) {
	if !r.enabled || r.notifier == nil {
		r.logger.Info("failed orders report is disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Send(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.WithError(err).Warn("failed orders report run failed")
			}
		}
	}
}

// Send отправляет отчёт один раз и возвращает число заказов в нём.
// Выключенный отчёт и пустой список ничего не отправляют.
func (r *FailedOrders) Send(ctx context.Context) (int, error) {
	if !r.enabled || r.notifier == nil {
		return 0, nil
	}
	failed, err := r.orders.ListByStatus(domain.OrderStatusFailed, r.limit)
	if err != nil {
		return 0, fmt.Errorf("list failed orders: %w", err)
	}
	if len(failed) == 0 {
		return 0, nil
	}
	if err := r.notifier.NotifyFailedOrders(ctx, failed); err != nil {
		return 0, err
	}
	return len(failed), nil
}
