package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// productRepositoryInMemory хранит локальный каталог по SKU.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository создаёт in-memory реализацию ProductRepository.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{items: make(map[string]domain.Product)}
}

func (r *productRepositoryInMemory) Upsert(product domain.Product) error {
	product.SKU = strings.TrimSpace(product.SKU)
	if errs := product.Validate(); len(errs) > 0 {
		return errs[0]
	}
	product.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[product.SKU] = cloneProduct(product)
	return nil
}

func (r *productRepositoryInMemory) Get(sku string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[sku]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(product), nil
}

func (r *productRepositoryInMemory) GetMany(skus []string) (map[string]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if product, ok := r.items[sku]; ok {
			result[sku] = cloneProduct(product)
		}
	}
	return result, nil
}

func (r *productRepositoryInMemory) SetStock(sku string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[sku]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.ManageStock = true
	product.StockQuantity = &qty
	product.UpdatedAt = time.Now().UTC()
	r.items[sku] = product
	return nil
}

func cloneProduct(p domain.Product) domain.Product {
	if p.StockQuantity != nil {
		qty := *p.StockQuantity
		p.StockQuantity = &qty
	}
	return p
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
