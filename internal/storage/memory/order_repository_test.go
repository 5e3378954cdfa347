package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/storage/memory"
)

func newOrder() domain.Order {
	return domain.Order{
		ID:     "order-1",
		Number: "1001",
		Status: domain.OrderStatusProcessing,
		Lines: []domain.OrderLine{
			{ID: "line-1", ProductID: "p-1", SKU: "sku-1", Quantity: 5, Subtotal: decimal.NewFromInt(500), Total: decimal.NewFromInt(500)},
		},
		Totals: domain.Totals{Total: decimal.NewFromInt(500)},
	}
}

func TestOrderRepository_UpsertGet(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder()

	stored, err := repo.Upsert(order)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if stored.Version != 0 || stored.CreatedAt.IsZero() {
		t.Fatalf("unexpected stored order: version=%d created=%s", stored.Version, stored.CreatedAt)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Number != "1001" || len(got.Lines) != 1 {
		t.Fatalf("unexpected order %+v", got)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_UpsertKeepsSyncState(t *testing.T) {
	repo := memory.NewOrderRepository()
	stored, err := repo.Upsert(newOrder())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	stored.Sync = domain.SyncState{SaleSent: true, DebitInvoiceID: "9001", DebitStoreID: "3"}
	if err := repo.Save(stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	snapshot := newOrder()
	snapshot.Status = domain.OrderStatusCompleted
	snapshot.Sync = domain.SyncState{}
	updated, err := repo.Upsert(snapshot)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if !updated.Sync.SaleSent || updated.Sync.DebitInvoiceID != "9001" {
		t.Fatalf("sync state must survive storefront snapshot, got %+v", updated.Sync)
	}
	if updated.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected storefront status to win, got %s", updated.Status)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	repo := memory.NewOrderRepository()
	stored, err := repo.Upsert(newOrder())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	stale := stored
	if err := repo.Save(stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := repo.Save(stale); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if err := repo.Save(domain.Order{ID: "missing"}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_ListByStatus(t *testing.T) {
	repo := memory.NewOrderRepository()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, status := range []domain.OrderStatus{domain.OrderStatusFailed, domain.OrderStatusProcessing, domain.OrderStatusFailed} {
		order := newOrder()
		order.ID = []string{"a", "b", "c"}[i]
		order.Status = status
		order.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := repo.Upsert(order); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	failed, err := repo.ListByStatus(domain.OrderStatusFailed, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 2 || failed[0].ID != "a" || failed[1].ID != "c" {
		t.Fatalf("unexpected failed orders: %+v", failed)
	}

	limited, err := repo.ListByStatus(domain.OrderStatusFailed, 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 order, got %d", len(limited))
	}
}

func TestOrderRepository_ReturnsCopies(t *testing.T) {
	repo := memory.NewOrderRepository()
	if _, err := repo.Upsert(newOrder()); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, _ := repo.Get("order-1")
	got.Lines[0].Quantity = 99

	again, _ := repo.Get("order-1")
	if again.Lines[0].Quantity != 5 {
		t.Fatalf("stored order was mutated through returned copy")
	}
}
