package invoice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// ErrInvalidInvoiceType — неизвестный тип чека.
var ErrInvalidInvoiceType = errors.New("invoice type must be debit or refund")

var minusOne = decimal.NewFromInt(-1)

// Build собирает документ продажи или возврата по снимку заказа.
// Функция чистая: заказ не меняется, документ строится заново на каждую попытку.
// Для возврата количества и суммы умножаются на -1, цены за единицу и ставки НДС сохраняют знак.
// Строка доставки не меняет знак ни в каком случае.
func Build(order domain.Order, posID, voucherID string, invoiceType InvoiceType) (Document, error) {
	if !invoiceType.Valid() {
		return Document{}, ErrInvalidInvoiceType
	}
	refund := invoiceType == InvoiceTypeRefund
	if refund && !order.Sync.HasDebitLinkage() {
		return Document{}, domain.ErrMissingInvoiceLinkage
	}
	sign := func(d decimal.Decimal) decimal.Decimal {
		if refund {
			return d.Mul(minusOne)
		}
		return d
	}
	signInt := func(n int) int {
		if refund {
			return -n
		}
		return n
	}

	vatable := VatableAmount(order)
	header := Header{
		InvoiceType:        invoiceType,
		PhysicalPOSID:      posID,
		TotalQuantity:      signInt(order.ItemCount()),
		TotalAmount:        NewAmount(sign(order.Totals.Total)),
		TotalVatableAmount: NewAmount(sign(vatable)),
		VAT:                NewAmount(OrderVATRate(order.Totals.Tax, vatable).Mul(hundred).Round(2)),
		ExternalID:         order.DisplayNumber(),
		ExternalPostID:     order.ID,
	}
	if refund {
		invoiceID, storeID := order.Sync.DebitInvoiceID, order.Sync.DebitStoreID
		header.ParentInvoiceNumber = &invoiceID
		header.ParentInvoiceStoreID = &storeID
	}

	items := make([]LineItem, 0, len(order.Lines)+1)
	for _, line := range order.Lines {
		if !line.HasProduct() {
			continue
		}
		tax, err := CalculateLine(line.Quantity, line.Subtotal, line.SubtotalTax, line.Total)
		if err != nil {
			return Document{}, fmt.Errorf("line %s: %w", line.ID, err)
		}
		code := line.SKU
		if code == "" {
			code = DefaultItemCode
		}
		discount := NewAmount(sign(tax.RowDiscount()))
		items = append(items, LineItem{
			RowNumber:      len(items) + 1,
			Quantity:       signInt(line.Quantity),
			UnitPrice:      NewAmount(tax.UnitPrice()),
			ItemCode:       code,
			Barcode:        code,
			ItemDesc:       line.Name,
			VAT:            NewAmount(tax.VATPercent),
			DiscountAmount: &discount,
		})
	}

	if order.Totals.Shipping.IsPositive() {
		items = append(items, shippingItem(order, len(items)+1))
	}

	sale := Sale{
		Header: header,
		Customer: Customer{
			FirstName:   order.Billing.FirstName,
			LastName:    order.Billing.LastName,
			Email:       order.Billing.Email,
			Phone:       order.Billing.Phone,
			Address:     order.Billing.Address1 + " " + order.Billing.Address2,
			City:        order.Billing.City,
			MailingList: order.MailingList,
		},
		Items: items,
		Payments: []Payment{
			{
				Method:      PaymentMethodVoucher,
				Amount:      NewAmount(sign(order.Totals.Total)),
				VoucherType: voucherID,
			},
		},
	}

	return Document{Sales: []Sale{sale}}, nil
}

// VatableAmount возвращает сумму с налогом по облагаемым позициям плюс налог на доставку.
func VatableAmount(order domain.Order) decimal.Decimal {
	total := decimal.Zero
	for _, line := range order.Lines {
		if !line.HasProduct() || !line.Taxable {
			continue
		}
		total = total.Add(line.Total).Add(line.TotalTax)
	}
	return total.Round(2).Add(order.Totals.ShippingTax)
}

// OrderVATRate возвращает ставку НДС по заказу как долю; 0, если база равна нулю.
func OrderVATRate(taxTotal, vatable decimal.Decimal) decimal.Decimal {
	base := vatable.Sub(taxTotal)
	if base.IsZero() {
		return decimal.Zero
	}
	return taxTotal.Div(base)
}

func shippingItem(order domain.Order, row int) LineItem {
	shipping := order.Totals.Shipping
	shippingTax := order.Totals.ShippingTax

	vat := decimal.Zero
	if shippingTax.IsPositive() {
		vat = shippingTax.Div(shipping).Mul(hundred).Round(2)
	}
	return LineItem{
		RowNumber: row,
		Quantity:  1,
		UnitPrice: NewAmount(shipping.Add(shippingTax).Round(2)),
		ItemCode:  DefaultItemCode,
		Barcode:   ShippingBarcode,
		ItemDesc:  strings.TrimSpace(order.ShippingMethod),
		VAT:       NewAmount(vat),
	}
}
