package domain

import "time"

// Product хранит локальную копию товара витрины для сверки остатков.
type Product struct {
	SKU       string
	ProductID string
	Name      string
	// StockQuantity пуст, если витрина не ведёт учёт остатков по товару.
	StockQuantity *int
	ManageStock   bool
	UpdatedAt     time.Time
}

// Validate проверяет ключевые поля товара.
func (p *Product) Validate() []error {
	var errs []error
	if p.SKU == "" {
		errs = append(errs, ErrProductSKURequired)
	}
	return errs
}

// StockEquals сообщает, совпадает ли текущий остаток с qty.
func (p Product) StockEquals(qty int) bool {
	return p.StockQuantity != nil && *p.StockQuantity == qty
}

// InventoryType — какой из остатков POSIT считать авторитетным.
type InventoryType string

const (
	InventoryTypeStore   InventoryType = "store_inventory"
	InventoryTypeCompany InventoryType = "company_inventory"
)

// Valid проверяет тип остатка.
func (t InventoryType) Valid() bool {
	return t == InventoryTypeStore || t == InventoryTypeCompany
}

// InventoryItem — строка остатков POSIT по одному SKU.
type InventoryItem struct {
	SKU     string
	Store   int
	Company int
}

// Quantity возвращает остаток выбранного типа.
func (i InventoryItem) Quantity(t InventoryType) int {
	if t == InventoryTypeCompany {
		return i.Company
	}
	return i.Store
}

// StockUpdate описывает новый остаток по SKU.
type StockUpdate struct {
	SKU      string
	Previous *int
	Quantity int
}

// MarkerInventorySync — имя отметки последней сверки остатков.
const MarkerInventorySync = "last_inventory_update"
