package storefront

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/service/invoice"
)

const wooOrder = `{
	"id": 1042,
	"number": "1042",
	"status": "completed",
	"billing": {"first_name": "Noa", "last_name": "Cohen", "email": "noa@example.com",
		"phone": "050-0000000", "address_1": "Dizengoff 10", "address_2": "", "city": "Tel Aviv"},
	"line_items": [
		{"id": 7, "product_id": 55, "name": "Mug", "sku": " MUG-1 ", "quantity": 2,
		 "subtotal": "100.00", "subtotal_tax": "17.00", "total": "90.00", "total_tax": "15.30"},
		{"id": 8, "product_id": 0, "name": "Deleted", "sku": "", "quantity": 1,
		 "subtotal": "10.00", "subtotal_tax": "0.00", "total": "10.00", "total_tax": "0.00"},
		{"id": 9, "product_id": "56", "name": "Card", "sku": "CARD", "quantity": 1,
		 "subtotal": 5, "subtotal_tax": 0, "total": 5, "total_tax": 0, "taxable": true}
	],
	"shipping_lines": [{"method_title": "Courier"}],
	"shipping_total": "20.00",
	"shipping_tax": "3.40",
	"total": "143.70",
	"total_tax": "18.70",
	"meta_data": [{"key": "mailing_list", "value": "1"}]
}`

func TestDecodeOrder_ToDomain(t *testing.T) {
	payload, err := DecodeOrder([]byte(wooOrder))
	require.NoError(t, err)

	order := payload.ToDomain()
	assert.Equal(t, "1042", order.ID)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	assert.Equal(t, "Courier", order.ShippingMethod)
	assert.True(t, order.MailingList)
	assert.Equal(t, "Dizengoff 10", order.Billing.Address1)
	assert.Empty(t, order.Sync, "sync state is never taken from the storefront")

	require.Len(t, order.Lines, 3)
	assert.Equal(t, "MUG-1", order.Lines[0].SKU)
	assert.True(t, order.Lines[0].Taxable)
	assert.True(t, order.Lines[0].TotalTax.Equal(decimal.RequireFromString("15.3")))
	assert.False(t, order.Lines[1].HasProduct(), "product_id 0 means the product was deleted")
	assert.False(t, order.Lines[1].Taxable)
	assert.True(t, order.Lines[2].Taxable, "explicit taxable flag wins")
	assert.Equal(t, "56", order.Lines[2].ProductID)

	assert.True(t, order.Totals.Shipping.Equal(decimal.NewFromInt(20)))
	assert.True(t, order.Totals.Tax.Equal(decimal.RequireFromString("18.7")), "order tax keeps shipping tax")
	assert.True(t, order.Totals.Total.Equal(decimal.RequireFromString("143.7")))
	assert.Empty(t, order.ValidateInvariants())
}

const taxedShippingOrder = `{
	"id": 2001,
	"status": "completed",
	"line_items": [
		{"id": 1, "product_id": 10, "name": "Lamp", "sku": "LAMP", "quantity": 1,
		 "subtotal": "100.00", "subtotal_tax": "17.00", "total": "100.00", "total_tax": "17.00"}
	],
	"shipping_lines": [{"method_title": "Courier"}],
	"shipping_total": "10.00",
	"shipping_tax": "1.70",
	"total": "128.70"%s
}`

func TestToDomain_TaxedShippingHeaderVAT(t *testing.T) {
	cases := []struct {
		name  string
		extra string
	}{
		{name: "total_tax present", extra: `, "total_tax": "18.70"`},
		{name: "total_tax missing", extra: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := DecodeOrder([]byte(fmt.Sprintf(taxedShippingOrder, tc.extra)))
			require.NoError(t, err)

			order := payload.ToDomain()
			assert.True(t, order.Totals.Tax.Equal(decimal.RequireFromString("18.7")), "got %s", order.Totals.Tax)

			doc, err := invoice.Build(order, "POS-1", "133337", invoice.InvoiceTypeDebit)
			require.NoError(t, err)
			header := doc.Sale().Header
			assert.True(t, header.TotalVatableAmount.Decimal.Equal(decimal.RequireFromString("118.7")), "got %s", header.TotalVatableAmount.Decimal)
			// 18.7 / (118.7 - 18.7)
			assert.True(t, header.VAT.Decimal.Equal(decimal.RequireFromString("18.7")), "got %s", header.VAT.Decimal)
		})
	}
}

func TestOrder_StatusPrefixAndMailingList(t *testing.T) {
	cases := []struct {
		name string
		json string
		want bool
	}{
		{name: "absent", json: `{"id":"1","status":"wc-processing"}`, want: false},
		{name: "bool", json: `{"id":"1","status":"processing","meta_data":[{"key":"_mailing_list","value":true}]}`, want: true},
		{name: "zero string", json: `{"id":"1","status":"processing","meta_data":[{"key":"mailing_list","value":"0"}]}`, want: false},
		{name: "number", json: `{"id":"1","status":"processing","meta_data":[{"key":"mailing_list","value":1}]}`, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := DecodeOrder([]byte(tc.json))
			require.NoError(t, err)
			order := payload.ToDomain()
			assert.Equal(t, domain.OrderStatusProcessing, order.Status)
			assert.Equal(t, tc.want, order.MailingList)
		})
	}
}

func TestDecodeOrder_Errors(t *testing.T) {
	_, err := DecodeOrder([]byte("  "))
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = DecodeOrder([]byte(`{"id": {}}`))
	assert.Error(t, err)

	_, err = DecodeOrder([]byte(`{"id": 1, "line_items": [{"subtotal": "abc"}]}`))
	assert.Error(t, err)
}

func TestDecodeProduct(t *testing.T) {
	payload, err := DecodeProduct([]byte(`{"id": 55, "sku": "MUG-1", "name": "Mug", "manage_stock": true, "stock_quantity": 4}`))
	require.NoError(t, err)

	product := payload.ToDomain()
	assert.Equal(t, "55", product.ProductID)
	require.NotNil(t, product.StockQuantity)
	assert.Equal(t, 4, *product.StockQuantity)
	assert.Empty(t, product.Validate())

	noStock, err := DecodeProduct([]byte(`{"id": "56", "sku": "CARD", "stock_quantity": null}`))
	require.NoError(t, err)
	assert.Nil(t, noStock.ToDomain().StockQuantity)
}
