package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/positsync/internal/metrics"
	"github.com/vladislavdragonenkov/positsync/internal/notify/email"
	"github.com/vladislavdragonenkov/positsync/internal/posit"
	"github.com/vladislavdragonenkov/positsync/internal/service/delivery"
	"github.com/vladislavdragonenkov/positsync/internal/service/httpapi"
	"github.com/vladislavdragonenkov/positsync/internal/service/inventory"
	"github.com/vladislavdragonenkov/positsync/internal/service/outbox"
	"github.com/vladislavdragonenkov/positsync/internal/service/report"
	"github.com/vladislavdragonenkov/positsync/internal/service/sales"
)

// backgroundWorker — фоновый цикл, работающий до отмены ctx.
type backgroundWorker interface {
	Run(ctx context.Context)
}

type namedWorker struct {
	name   string
	worker backgroundWorker
}

// services — собранный граф сервисов поверх выбранных хранилищ.
type services struct {
	client       *posit.Client
	reconciler   *inventory.Reconciler
	synchronizer *sales.Synchronizer
	dispatcher   *sales.Dispatcher
	api          *httpapi.Server
	workers      []namedWorker
}

func buildServices(
	cfg Config,
	deps *runtimeDependencies,
	producer *kafka.Producer,
	syncMetrics *metrics.SyncMetrics,
	workerMetrics *metrics.WorkerMetrics,
	logger *log.Entry,
) *services {
	client := posit.NewClient(posit.Config{
		TenantURL:         cfg.PositTenantURL,
		APIKey:            cfg.PositAPIKey,
		Timeout:           cfg.PositRequestTimeout,
		RequestsPerSecond: cfg.PositRateLimit,
		Burst:             cfg.PositRateBurst,
	},
		posit.WithLogger(logger.WithField("component", "posit-client")),
		posit.WithMetrics(syncMetrics),
	)

	reconciler := inventory.NewReconciler(inventory.Config{
		InventoryType:            cfg.PositInventoryType,
		OffsetByProcessingOrders: cfg.OffsetByProcessingOrders,
	}, client, deps.products, deps.orders, deps.markers,
		inventory.WithLogger(logger.WithField("component", "inventory")),
		inventory.WithMetrics(syncMetrics),
		inventory.WithOutbox(deps.outbox),
		inventory.WithLocker(deps.locker),
	)

	syncOpts := []sales.Option{
		sales.WithLogger(logger.WithField("component", "sales")),
		sales.WithMetrics(syncMetrics),
	}
	if cfg.EnableInventoryInterface {
		syncOpts = append(syncOpts, sales.WithInventory(reconciler))
	}
	synchronizer := sales.NewSynchronizer(sales.Config{
		POSID:     cfg.PositPOSID,
		VoucherID: cfg.PositVoucherID,
	}, deps.orders, deps.notes, deps.outbox, client, deps.locker, syncOpts...)

	dispatcher := sales.NewDispatcher(synchronizer, deps.orders, cfg.EnableSalesInterface,
		logger.WithField("component", "order-events"))

	var inventorySyncer httpapi.InventorySyncer
	if cfg.EnableInventoryInterface {
		inventorySyncer = reconciler
	}
	api := httpapi.NewServer(httpapi.Config{
		WebhookSecret: cfg.WebhookSecret,
		AdminToken:    cfg.AdminToken,
		DeliveryTTL:   cfg.DeliveryTTL,
	}, httpapi.Dependencies{
		Events:     dispatcher,
		Resender:   synchronizer,
		Inventory:  inventorySyncer,
		Orders:     deps.orders,
		Notes:      deps.notes,
		Products:   deps.products,
		Deliveries: deps.deliveries,
	},
		httpapi.WithLogger(logger.WithField("component", "http-api")),
		httpapi.WithMetrics(workerMetrics),
	)

	svc := &services{
		client:       client,
		reconciler:   reconciler,
		synchronizer: synchronizer,
		dispatcher:   dispatcher,
		api:          api,
	}

	if cfg.EnableInventoryInterface {
		svc.add("inventory", inventory.NewWorker(reconciler,
			inventory.WithWorkerLogger(logger.WithField("component", "inventory-worker")),
			inventory.WithInterval(cfg.InventoryInterval),
		))
	}

	notifier := email.NewNotifier(email.Config{
		Host:              cfg.SMTPHost,
		Port:              cfg.SMTPPort,
		Username:          cfg.SMTPUsername,
		Password:          cfg.SMTPPassword,
		From:              cfg.EmailFrom,
		To:                cfg.EmailTo,
		OrderLinkTemplate: cfg.OrderLinkTemplate,
		Location:          loadLocation(cfg.Timezone, logger),
	}, email.WithLogger(logger.WithField("component", "email-notifier")))
	svc.add("failed-orders-report", report.NewFailedOrders(deps.orders, notifier, cfg.EmailFailedSales && cfg.SMTPHost != "",
		report.WithLogger(logger.WithField("component", "failed-orders-report")),
		report.WithInterval(cfg.ReportInterval),
		report.WithLimit(cfg.ReportLimit),
	))

	svc.add("delivery-cleanup", delivery.NewCleanupWorker(deps.deliveries,
		delivery.WithLogger(logger.WithField("component", "delivery-cleanup")),
		delivery.WithMetrics(workerMetrics),
		delivery.WithInterval(cfg.DeliveryCleanupInterval),
		delivery.WithBatchSize(cfg.DeliveryCleanupBatch),
	))

	if producer != nil {
		svc.add("outbox", outbox.NewWorker(deps.outbox, kafka.NewOutboxPublisher(producer, kafka.TopicSyncEvents),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(workerMetrics),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		))
	}

	return svc
}

func (s *services) add(name string, worker backgroundWorker) {
	s.workers = append(s.workers, namedWorker{name: name, worker: worker})
}

// positStatus отдаёт ErrConfigurationMissing для degraded health-проверки.
func (s *services) positStatus(context.Context) error {
	return s.synchronizer.ConfigurationError()
}

func loadLocation(name string, logger *log.Entry) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.WithError(err).WithField("timezone", name).Warn("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}
