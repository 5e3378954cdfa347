package domain

// Reservations хранит количество единиц по SKU, занятых заказами в обработке.
type Reservations map[string]int

// ReservationsFrom суммирует позиции заказов по SKU. Позиции без товара пропускаются.
func ReservationsFrom(orders []Order) Reservations {
	res := make(Reservations)
	for _, order := range orders {
		for _, line := range order.Lines {
			if !line.HasProduct() || line.Quantity <= 0 {
				continue
			}
			res[line.SKU] += line.Quantity
		}
	}
	return res
}

// Get возвращает резерв по SKU или 0.
func (r Reservations) Get(sku string) int {
	if r == nil {
		return 0
	}
	return r[sku]
}
