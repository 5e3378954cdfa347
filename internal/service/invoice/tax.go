package invoice

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity — количество в позиции должно быть не меньше 1.
var ErrInvalidQuantity = errors.New("line quantity must be at least 1")

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// LineTax — результат расчёта налога по одной позиции.
// Значения не округлены; округление выполняется при сборке документа.
type LineTax struct {
	Quantity int
	// Доля налога, например 0.17.
	TaxRate decimal.Decimal
	// Ставка в процентах, округлённая до целого.
	VATPercent             decimal.Decimal
	TaxPerUnit             decimal.Decimal
	OriginalUnitPrice      decimal.Decimal
	DiscountedUnitPrice    decimal.Decimal
	DiscountPerUnit        decimal.Decimal
	DiscountPerUnitWithTax decimal.Decimal
	UnitPriceWithTax       decimal.Decimal
}

// CalculateLine считает цену с налогом, скидку и ставку НДС для позиции.
// subtotal и subtotalTax относятся ко всей строке до скидки, total считается после скидки.
func CalculateLine(quantity int, subtotal, subtotalTax, total decimal.Decimal) (LineTax, error) {
	if quantity < 1 {
		return LineTax{}, ErrInvalidQuantity
	}
	qty := decimal.NewFromInt(int64(quantity))

	rate := decimal.Zero
	perUnitTax := decimal.Zero
	// Нулевой subtotal даёт нулевую ставку и нулевой налог на единицу.
	if !subtotal.IsZero() {
		rate = subtotalTax.Div(subtotal)
		perUnitTax = subtotalTax.Div(qty)
	}

	original := subtotal.Div(qty)
	discounted := total.Div(qty)
	discount := original.Sub(discounted)

	return LineTax{
		Quantity:               quantity,
		TaxRate:                rate,
		VATPercent:             rate.Mul(hundred).Round(0),
		TaxPerUnit:             perUnitTax,
		OriginalUnitPrice:      original,
		DiscountedUnitPrice:    discounted,
		DiscountPerUnit:        discount,
		DiscountPerUnitWithTax: discount.Mul(one.Add(rate)),
		UnitPriceWithTax:       original.Add(perUnitTax),
	}, nil
}

// UnitPrice возвращает цену единицы с налогом, округлённую до копеек.
func (t LineTax) UnitPrice() decimal.Decimal {
	return t.UnitPriceWithTax.Round(2)
}

// RowDiscount возвращает скидку с налогом на всю строку, округлённую до копеек.
func (t LineTax) RowDiscount() decimal.Decimal {
	return t.DiscountPerUnitWithTax.Mul(decimal.NewFromInt(int64(t.Quantity))).Round(2)
}
