package inventory

import "github.com/vladislavdragonenkov/positsync/internal/domain"

// Reconcile сравнивает снимок POSIT с локальными остатками и возвращает записи,
// которые нужно применить. SKU без локального товара пропускаются.
// При offset из остатка вычитается резерв заказов в обработке.
func Reconcile(
	snapshot []domain.InventoryItem,
	products map[string]domain.Product,
	reservations domain.Reservations,
	invType domain.InventoryType,
	offset bool,
) []domain.StockUpdate {
	updates := make([]domain.StockUpdate, 0, len(snapshot))
	seen := make(map[string]struct{}, len(snapshot))
	for _, item := range snapshot {
		if _, dup := seen[item.SKU]; dup {
			continue
		}
		seen[item.SKU] = struct{}{}

		product, ok := products[item.SKU]
		if !ok {
			continue
		}
		qty := item.Quantity(invType)
		if offset {
			qty -= reservations.Get(item.SKU)
		}
		if product.StockEquals(qty) {
			continue
		}
		updates = append(updates, domain.StockUpdate{
			SKU:      item.SKU,
			Previous: product.StockQuantity,
			Quantity: qty,
		})
	}
	return updates
}
