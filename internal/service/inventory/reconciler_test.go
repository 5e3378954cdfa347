package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/storage/memory"
)

type stubSource struct {
	mu         sync.Mutex
	configured bool
	items      []domain.InventoryItem
	err        error
	calls      int
}

func (s *stubSource) FetchInventory(context.Context) ([]domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.items, s.err
}

func (s *stubSource) Configured() bool { return s.configured }

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// flakyProducts отказывает в записи остатка для SKU из failOn.
type flakyProducts struct {
	domain.ProductRepository
	failOn map[string]bool
}

func (f *flakyProducts) SetStock(sku string, qty int) error {
	if f.failOn[sku] {
		return errors.New("disk full")
	}
	return f.ProductRepository.SetStock(sku, qty)
}

type reconcilerFixture struct {
	reconciler *Reconciler
	source     *stubSource
	products   domain.ProductRepository
	orders     domain.OrderRepository
	markers    domain.MarkerStore
	outbox     *memory.OutboxRepository
}

var runAt = time.Date(2024, 4, 10, 8, 0, 0, 0, time.UTC)

func newReconcilerFixture(t *testing.T, cfg Config, products domain.ProductRepository) *reconcilerFixture {
	t.Helper()
	if products == nil {
		products = memory.NewProductRepository()
	}
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	f := &reconcilerFixture{
		source:   &stubSource{configured: true},
		products: products,
		orders:   memory.NewOrderRepository(),
		markers:  memory.NewMarkerStore(),
		outbox:   memory.NewOutboxRepository(),
	}
	f.reconciler = NewReconciler(cfg, f.source, f.products, f.orders, f.markers,
		WithLogger(logger.WithField("test", t.Name())),
		WithOutbox(f.outbox),
		WithLocker(memory.NewKeyedLocker()),
		WithClock(func() time.Time { return runAt }),
	)
	return f
}

func (f *reconcilerFixture) seedProduct(t *testing.T, sku string, stock *int) {
	t.Helper()
	require.NoError(t, f.products.Upsert(domain.Product{SKU: sku, ProductID: "p-" + sku, StockQuantity: stock}))
}

func (f *reconcilerFixture) seedProcessingOrder(t *testing.T, id, sku string, qty int) {
	t.Helper()
	_, err := f.orders.Upsert(domain.Order{
		ID:     id,
		Status: domain.OrderStatusProcessing,
		Lines:  []domain.OrderLine{{ID: id + "-1", ProductID: "p-" + sku, SKU: sku, Quantity: qty}},
	})
	require.NoError(t, err)
}

func TestReconciler_OffsetsProcessingOrders(t *testing.T) {
	f := newReconcilerFixture(t, Config{InventoryType: domain.InventoryTypeStore, OffsetByProcessingOrders: true}, nil)
	f.seedProduct(t, "A", intPtr(47))
	f.seedProduct(t, "B", intPtr(1))
	f.seedProcessingOrder(t, "o-1", "A", 3)
	f.source.items = []domain.InventoryItem{
		{SKU: "A", Store: 50},
		{SKU: "B", Store: 9},
		{SKU: "missing", Store: 2},
	}

	report, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Fetched)
	require.Equal(t, 1, report.Updated)
	require.Equal(t, 1, report.Unchanged)

	a, err := f.products.Get("A")
	require.NoError(t, err)
	require.True(t, a.StockEquals(47))
	require.False(t, a.ManageStock, "unchanged product must not be written")

	b, err := f.products.Get("B")
	require.NoError(t, err)
	require.True(t, b.StockEquals(9))
	require.True(t, b.ManageStock)

	last, err := f.reconciler.LastRun()
	require.NoError(t, err)
	require.Equal(t, runAt, last)

	pending, err := f.outbox.PullPending(0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, domain.EventStockUpdated, pending[0].EventType)

	var payload stockUpdatedPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	require.Len(t, payload.Updates, 1)
	require.Equal(t, "B", payload.Updates[0].SKU)
	require.Equal(t, 9, payload.Updates[0].Quantity)
}

func TestReconciler_EmptySnapshotKeepsMarker(t *testing.T) {
	f := newReconcilerFixture(t, Config{}, nil)

	report, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Fetched)

	_, err = f.reconciler.LastRun()
	require.ErrorIs(t, err, domain.ErrMarkerNotFound)
}

func TestReconciler_FetchError(t *testing.T) {
	f := newReconcilerFixture(t, Config{}, nil)
	f.source.err = domain.ErrTransport

	_, err := f.reconciler.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrTransport)

	_, err = f.reconciler.LastRun()
	require.ErrorIs(t, err, domain.ErrMarkerNotFound)
}

func TestReconciler_NotConfigured(t *testing.T) {
	f := newReconcilerFixture(t, Config{}, nil)
	f.source.configured = false

	err := f.reconciler.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrConfigurationMissing)
	require.Zero(t, f.source.callCount())
}

func TestReconciler_PartialFailureKeepsGoing(t *testing.T) {
	products := &flakyProducts{ProductRepository: memory.NewProductRepository(), failOn: map[string]bool{"A": true}}
	f := newReconcilerFixture(t, Config{}, products)
	f.seedProduct(t, "A", nil)
	f.seedProduct(t, "B", nil)
	f.source.items = []domain.InventoryItem{{SKU: "A", Store: 1}, {SKU: "B", Store: 2}}

	report, err := f.reconciler.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, report.Updated)

	b, err := f.products.Get("B")
	require.NoError(t, err)
	require.True(t, b.StockEquals(2))

	_, err = f.reconciler.LastRun()
	require.ErrorIs(t, err, domain.ErrMarkerNotFound, "partial run must be retried by the next start")
}

func TestReconciler_CompanyInventory(t *testing.T) {
	f := newReconcilerFixture(t, Config{InventoryType: domain.InventoryTypeCompany}, nil)
	f.seedProduct(t, "A", intPtr(1))
	f.seedProcessingOrder(t, "o-1", "A", 5)
	f.source.items = []domain.InventoryItem{{SKU: "A", Store: 3, Company: 30}}

	_, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)

	a, err := f.products.Get("A")
	require.NoError(t, err)
	require.True(t, a.StockEquals(30), "offset is disabled")
}

func TestReconciler_ResetMarker(t *testing.T) {
	f := newReconcilerFixture(t, Config{}, nil)
	f.seedProduct(t, "A", nil)
	f.source.items = []domain.InventoryItem{{SKU: "A", Store: 3}}

	_, err := f.reconciler.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.reconciler.ResetMarker())

	last, err := f.reconciler.LastRun()
	require.NoError(t, err)
	require.True(t, last.IsZero())
}
