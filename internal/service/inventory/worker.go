package inventory

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

const defaultInterval = time.Hour

// WorkerOptions задаёт параметры воркера сверки.
type WorkerOptions struct {
	Logger   *log.Entry
	Interval time.Duration
	Now      func() time.Time
}

// WorkerOption настраивает Worker.
type WorkerOption func(*WorkerOptions)

// WithWorkerLogger задаёт логгер воркера.
func WithWorkerLogger(logger *log.Entry) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт период сверки. Он же порог устаревания отметки при старте.
func WithInterval(interval time.Duration) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Interval = interval
	}
}

// WithWorkerClock подменяет источник времени.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(opts *WorkerOptions) {
		opts.Now = now
	}
}

// Worker периодически запускает сверку остатков.
type Worker struct {
	reconciler *Reconciler
	logger     *log.Entry
	interval   time.Duration
	now        func() time.Time
}

// NewWorker создаёт воркер сверки.
func NewWorker(reconciler *Reconciler, options ...WorkerOption) *Worker {
	opts := WorkerOptions{Interval: defaultInterval}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "inventory-worker")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Worker{
		reconciler: reconciler,
		logger:     opts.Logger,
		interval:   opts.Interval,
		now:        opts.Now,
	}
}

// Run при старте выполняет сверку, если последняя старше интервала, затем работает по таймеру до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.reconciler == nil {
		w.logger.Warn("inventory worker is disabled: reconciler is nil")
		return
	}

	if w.Stale() {
		w.runOnce(ctx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stale сообщает, что успешной сверки не было дольше интервала.
func (w *Worker) Stale() bool {
	last, err := w.reconciler.LastRun()
	if err != nil {
		if !errors.Is(err, domain.ErrMarkerNotFound) {
			w.logger.WithError(err).Warn("read inventory marker failed")
		}
		return true
	}
	return w.now().Sub(last) > w.interval
}

func (w *Worker) runOnce(ctx context.Context) {
	if _, err := w.reconciler.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, domain.ErrConfigurationMissing) {
			w.logger.Debug("inventory reconciliation skipped: posit is not configured")
			return
		}
		w.logger.WithError(err).Warn("inventory reconciliation failed")
	}
}
