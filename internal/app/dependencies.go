package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/positsync/internal/health"
	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/storage/memory"
	"github.com/vladislavdragonenkov/positsync/internal/storage/postgres"
	redislock "github.com/vladislavdragonenkov/positsync/internal/storage/redis"
)

// runtimeDependencies — хранилища и блокировки, выбранные по конфигурации.
type runtimeDependencies struct {
	orders     domain.OrderRepository
	notes      domain.NoteRepository
	products   domain.ProductRepository
	markers    domain.MarkerStore
	outbox     domain.OutboxRepository
	deliveries domain.DeliveryRepository
	locker     domain.Locker

	storageChecker healthcheck.Checker
	lockChecker    healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var deps *runtimeDependencies
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps = &runtimeDependencies{
			orders:     memory.NewOrderRepository(),
			notes:      memory.NewNoteRepository(),
			products:   memory.NewProductRepository(),
			markers:    memory.NewMarkerStore(),
			outbox:     memory.NewOutboxRepository(),
			deliveries: memory.NewDeliveryRepository(),
		}
		logger.Info("storage: in-memory")
	case StorageDriverPostgres:
		var err error
		deps, err = initPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if err := initLocker(ctx, cfg, deps, logger); err != nil {
		_ = deps.close()
		return nil, err
	}
	return deps, nil
}

func initPostgres(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("postgres storage requires POSTGRES_DSN")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.PoolConfig{MaxOpenConns: cfg.PostgresMaxOpenConns})
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("storage: postgres")

	return &runtimeDependencies{
		orders:         postgres.NewOrderRepository(store),
		notes:          postgres.NewNoteRepository(store),
		products:       postgres.NewProductRepository(store),
		markers:        postgres.NewMarkerStore(store),
		outbox:         postgres.NewOutboxRepository(store),
		deliveries:     postgres.NewDeliveryRepository(store),
		storageChecker: healthcheck.NewSimpleChecker("postgres", store.Ping),
		closeFn:        store.Close,
	}, nil
}

func initLocker(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	if cfg.RedisAddr == "" {
		deps.locker = memory.NewKeyedLocker()
		return nil
	}

	client, err := redislock.NewClient(ctx, redislock.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	locker := redislock.NewLocker(client,
		redislock.WithTTL(cfg.LockTTL),
		redislock.WithLogger(logger.WithField("component", "redis-locker")),
	)
	deps.locker = locker
	deps.lockChecker = healthcheck.NewSimpleChecker("redis", locker.Ping)

	storageClose := deps.closeFn
	deps.closeFn = func() error {
		return errors.Join(closeRedis(client), callClose(storageClose))
	}
	logger.WithField("addr", cfg.RedisAddr).Info("locks: redis")
	return nil
}

func closeRedis(client *goredis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}

func callClose(fn func() error) error {
	if fn == nil {
		return nil
	}
	return fn()
}

func (d *runtimeDependencies) close() error {
	if d == nil {
		return nil
	}
	return callClose(d.closeFn)
}
