package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/positsync/internal/storage/memory"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)

	assert.NotNil(t, deps.orders)
	assert.NotNil(t, deps.notes)
	assert.NotNil(t, deps.products)
	assert.NotNil(t, deps.markers)
	assert.NotNil(t, deps.outbox)
	assert.NotNil(t, deps.deliveries)
	assert.IsType(t, &memory.KeyedLocker{}, deps.locker)
	assert.Nil(t, deps.storageChecker, "memory storage has nothing to ping")
	assert.Nil(t, deps.lockChecker)
	assert.NoError(t, deps.close())
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	require.Error(t, err)
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitRuntimeDependencies_UnreachableRedis(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := initRuntimeDependencies(ctx, Config{
		StorageDriver: StorageDriverMemory,
		RedisAddr:     "127.0.0.1:1",
	}, log.WithField("test", "redis-down"))
	require.Error(t, err)
}

func TestRuntimeDependencies_CloseNil(t *testing.T) {
	var deps *runtimeDependencies
	assert.NoError(t, deps.close())
	assert.NoError(t, (&runtimeDependencies{}).close())
}
