// Package redis содержит распределённую блокировку заказов поверх Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

const (
	defaultLockTTL       = 2 * time.Minute
	defaultRetryInterval = 50 * time.Millisecond
	defaultKeyPrefix     = "positsync:lock:"
	releaseTimeout       = 2 * time.Second
)

// releaseScript удаляет ключ, только если им всё ещё владеет этот токен.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config описывает подключение к Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Option настраивает Locker.
type Option func(*Locker)

// WithTTL задаёт время жизни блокировки. Оно должно покрывать самую долгую отправку в POSIT.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval задаёт паузу между попытками захвата.
func WithRetryInterval(interval time.Duration) Option {
	return func(l *Locker) {
		if interval > 0 {
			l.retryInterval = interval
		}
	}
}

// WithKeyPrefix задаёт префикс ключей блокировок.
func WithKeyPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Locker держит блокировку по ключу между экземплярами сервиса через SET NX PX с токеном владельца.
type Locker struct {
	client        goredis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	prefix        string
	logger        *log.Entry
}

// NewClient создаёт клиента Redis и проверяет подключение.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewLocker создаёт Locker поверх готового клиента.
func NewLocker(client goredis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client:        client,
		ttl:           defaultLockTTL,
		retryInterval: defaultRetryInterval,
		prefix:        defaultKeyPrefix,
		logger:        log.WithField("component", "redis-locker"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire повторяет SET NX до успеха или отмены ctx.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrLockNotAcquired, key, err)
		}
		if ok {
			return l.releaser(fullKey, token), nil
		}

		timer := time.NewTimer(l.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, token) })
	}
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	switch {
	case err != nil && !errors.Is(err, goredis.Nil):
		l.logger.WithError(err).WithField("key", key).Warn("failed to release lock")
	case err == nil && deleted == 0:
		l.logger.WithField("key", key).Warn("lock expired before release")
	}
}

// Ping проверяет доступность Redis для health-проверок.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

var _ domain.Locker = (*Locker)(nil)
