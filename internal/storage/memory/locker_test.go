package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	locker := NewKeyedLocker()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "order-1")
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			defer release()

			n := atomic.AddInt32(&active, 1)
			for {
				current := atomic.LoadInt32(&maxActive)
				if n <= current || atomic.CompareAndSwapInt32(&maxActive, current, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected at most one holder, got %d", maxActive)
	}

	locker.mu.Lock()
	defer locker.mu.Unlock()
	if len(locker.locks) != 0 {
		t.Fatalf("expected released keys to be removed, got %d", len(locker.locks))
	}
}

func TestKeyedLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewKeyedLocker()

	releaseA, err := locker.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire a failed: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	releaseB, err := locker.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire b failed: %v", err)
	}
	releaseB()
}

func TestKeyedLocker_ContextCancel(t *testing.T) {
	locker := NewKeyedLocker()

	release, err := locker.Acquire(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "order-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	release()
	release()

	again, err := locker.Acquire(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	again()
}
