package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// KeyedLocker блокирует по ключу внутри одного процесса.
// Канал с буфером 1 служит мьютексом, который можно ждать вместе с ctx.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker создаёт блокировщик.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Acquire ждёт освобождения ключа. Освобождённые ключи удаляются из карты.
func (l *KeyedLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.ch
			l.unref(key, lock)
		})
	}, nil
}

func (l *KeyedLocker) unref(key string, lock *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

var _ domain.Locker = (*KeyedLocker)(nil)
