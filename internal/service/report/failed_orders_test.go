package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/storage/memory"
)

type stubNotifier struct {
	mu    sync.Mutex
	err   error
	sends [][]domain.Order
}

func (n *stubNotifier) NotifyFailedOrders(_ context.Context, orders []domain.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, orders)
	return n.err
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sends)
}

func seed(t *testing.T, repo domain.OrderRepository, id string, status domain.OrderStatus) {
	t.Helper()
	if _, err := repo.Upsert(domain.Order{ID: id, Status: status}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
}

func TestFailedOrders_Send(t *testing.T) {
	repo := memory.NewOrderRepository()
	seed(t, repo, "1", domain.OrderStatusFailed)
	seed(t, repo, "2", domain.OrderStatusCompleted)
	seed(t, repo, "3", domain.OrderStatusFailed)

	notifier := &stubNotifier{}
	r := NewFailedOrders(repo, notifier, true)

	n, err := r.Send(context.Background())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 orders in report, got %d", n)
	}
	if notifier.count() != 1 || len(notifier.sends[0]) != 2 {
		t.Fatalf("unexpected notifier calls: %+v", notifier.sends)
	}
	for _, order := range notifier.sends[0] {
		if order.Status != domain.OrderStatusFailed {
			t.Fatalf("unexpected order in report: %+v", order)
		}
	}
}

func TestFailedOrders_NoFailedOrders(t *testing.T) {
	repo := memory.NewOrderRepository()
	seed(t, repo, "1", domain.OrderStatusCompleted)
	notifier := &stubNotifier{}

	n, err := NewFailedOrders(repo, notifier, true).Send(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected noop, got n=%d err=%v", n, err)
	}
	if notifier.count() != 0 {
		t.Fatal("notifier must not be called for empty report")
	}
}

func TestFailedOrders_Disabled(t *testing.T) {
	repo := memory.NewOrderRepository()
	seed(t, repo, "1", domain.OrderStatusFailed)
	notifier := &stubNotifier{}

	n, err := NewFailedOrders(repo, notifier, false).Send(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected noop, got n=%d err=%v", n, err)
	}
	if notifier.count() != 0 {
		t.Fatal("notifier must not be called when report is disabled")
	}
}

func TestFailedOrders_NotifierError(t *testing.T) {
	repo := memory.NewOrderRepository()
	seed(t, repo, "1", domain.OrderStatusFailed)
	boom := errors.New("smtp down")

	_, err := NewFailedOrders(repo, &stubNotifier{err: boom}, true).Send(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected notifier error, got %v", err)
	}
}

func TestFailedOrders_Limit(t *testing.T) {
	repo := memory.NewOrderRepository()
	for _, id := range []string{"1", "2", "3"} {
		seed(t, repo, id, domain.OrderStatusFailed)
	}
	notifier := &stubNotifier{}

	n, err := NewFailedOrders(repo, notifier, true, WithLimit(2)).Send(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 orders, got n=%d err=%v", n, err)
	}
}

func TestFailedOrders_RunTicks(t *testing.T) {
	repo := memory.NewOrderRepository()
	seed(t, repo, "1", domain.OrderStatusFailed)
	notifier := &stubNotifier{}
	r := NewFailedOrders(repo, notifier, true, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for notifier.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	if notifier.count() == 0 {
		t.Fatal("expected at least one report")
	}
}
