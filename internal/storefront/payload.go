// Package storefront описывает JSON заказов и товаров витрины (формат WooCommerce REST/webhook)
// и переводит его в доменные типы.
package storefront

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// mailingListMetaKey — поле оформления заказа с согласием на рассылку.
const mailingListMetaKey = "mailing_list"

// ErrEmptyPayload — тело запроса или сообщения пустое.
var ErrEmptyPayload = errors.New("storefront payload is empty")

// ID принимает идентификатор и как число, и как строку.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type Billing struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
}

type LineItem struct {
	ID          ID              `json:"id"`
	ProductID   ID              `json:"product_id"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	SubtotalTax decimal.Decimal `json:"subtotal_tax"`
	Total       decimal.Decimal `json:"total"`
	TotalTax    decimal.Decimal `json:"total_tax"`
	// Taxable приходит от расширения витрины; без него облагаемость выводится из налога позиции.
	Taxable *bool `json:"taxable,omitempty"`
}

type ShippingLine struct {
	MethodTitle string `json:"method_title"`
}

type Meta struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Order повторяет заказ витрины в том виде, в каком его присылает webhook или Kafka.
type Order struct {
	ID            ID              `json:"id"`
	Number        string          `json:"number"`
	Status        string          `json:"status"`
	Billing       Billing         `json:"billing"`
	LineItems     []LineItem      `json:"line_items"`
	ShippingLines []ShippingLine  `json:"shipping_lines"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	ShippingTax   decimal.Decimal `json:"shipping_tax"`
	Total         decimal.Decimal `json:"total"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	MetaData      []Meta          `json:"meta_data"`
}

// DecodeOrder разбирает JSON заказа.
func DecodeOrder(raw []byte) (Order, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Order{}, ErrEmptyPayload
	}
	var order Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return Order{}, fmt.Errorf("decode storefront order: %w", err)
	}
	return order, nil
}

// ToDomain переводит заказ витрины в доменный снимок. SyncState остаётся нулевым:
// им владеет только сервис синхронизации.
func (o Order) ToDomain() domain.Order {
	order := domain.Order{
		ID:     string(o.ID),
		Number: o.Number,
		Status: domain.OrderStatus(strings.TrimPrefix(strings.TrimSpace(o.Status), "wc-")),
		Billing: domain.Billing{
			FirstName: o.Billing.FirstName,
			LastName:  o.Billing.LastName,
			Email:     o.Billing.Email,
			Phone:     o.Billing.Phone,
			Address1:  o.Billing.Address1,
			Address2:  o.Billing.Address2,
			City:      o.Billing.City,
		},
		MailingList:    o.mailingList(),
		ShippingMethod: o.shippingMethod(),
		Lines:          make([]domain.OrderLine, 0, len(o.LineItems)),
	}

	var subtotal, tax decimal.Decimal
	for _, item := range o.LineItems {
		taxable := !item.SubtotalTax.IsZero() || !item.TotalTax.IsZero()
		if item.Taxable != nil {
			taxable = *item.Taxable
		}
		productID := string(item.ProductID)
		if productID == "0" {
			productID = ""
		}
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:          string(item.ID),
			ProductID:   productID,
			SKU:         strings.TrimSpace(item.SKU),
			Name:        item.Name,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
			SubtotalTax: item.SubtotalTax,
			Total:       item.Total,
			TotalTax:    item.TotalTax,
			Taxable:     taxable,
		})
		subtotal = subtotal.Add(item.Subtotal)
		tax = tax.Add(item.TotalTax)
	}

	order.Totals = domain.Totals{
		Subtotal:    subtotal,
		Tax:         tax.Add(o.ShippingTax),
		Shipping:    o.ShippingTotal,
		ShippingTax: o.ShippingTax,
		Total:       o.Total,
	}
	if !o.TotalTax.IsZero() {
		order.Totals.Tax = o.TotalTax
	}
	return order
}

func (o Order) shippingMethod() string {
	titles := make([]string, 0, len(o.ShippingLines))
	for _, line := range o.ShippingLines {
		if t := strings.TrimSpace(line.MethodTitle); t != "" {
			titles = append(titles, t)
		}
	}
	return strings.Join(titles, ", ")
}

// mailingList читает согласие на рассылку; отсутствующее поле означает false.
func (o Order) mailingList() bool {
	for _, meta := range o.MetaData {
		if meta.Key != mailingListMetaKey && meta.Key != "_"+mailingListMetaKey {
			continue
		}
		var v any
		if err := json.Unmarshal(meta.Value, &v); err != nil {
			return false
		}
		switch val := v.(type) {
		case bool:
			return val
		case float64:
			return val != 0
		case string:
			s := strings.ToLower(strings.TrimSpace(val))
			return s != "" && s != "0" && s != "false" && s != "no"
		}
		return false
	}
	return false
}

// Product приходит в webhook product.created/product.updated.
type Product struct {
	ID            ID     `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	ManageStock   bool   `json:"manage_stock"`
	StockQuantity *int   `json:"stock_quantity"`
}

// DecodeProduct разбирает JSON товара.
func DecodeProduct(raw []byte) (Product, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Product{}, ErrEmptyPayload
	}
	var product Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return Product{}, fmt.Errorf("decode storefront product: %w", err)
	}
	return product, nil
}

// ToDomain переводит товар в локальную копию каталога.
func (p Product) ToDomain() domain.Product {
	product := domain.Product{
		SKU:         strings.TrimSpace(p.SKU),
		ProductID:   string(p.ID),
		Name:        p.Name,
		ManageStock: p.ManageStock,
	}
	if p.StockQuantity != nil {
		qty := *p.StockQuantity
		product.StockQuantity = &qty
	}
	return product
}
