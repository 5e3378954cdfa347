package invoice

import "github.com/shopspring/decimal"

// InvoiceType — тип чека POSIT.
type InvoiceType int

const (
	InvoiceTypeDebit  InvoiceType = 1
	InvoiceTypeRefund InvoiceType = 2
)

// Valid проверяет тип чека.
func (t InvoiceType) Valid() bool {
	return t == InvoiceTypeDebit || t == InvoiceTypeRefund
}

func (t InvoiceType) String() string {
	switch t {
	case InvoiceTypeDebit:
		return "debit"
	case InvoiceTypeRefund:
		return "refund"
	default:
		return "unknown"
	}
}

const (
	// Способ оплаты «ваучер», обязательный для интернет-продаж.
	PaymentMethodVoucher = 3
	// DefaultItemCode подставляется, если у товара нет SKU.
	DefaultItemCode = "1000"
	// Штрихкод строки доставки.
	ShippingBarcode = "shipping"
)

// Amount сериализуется в JSON числом: POSIT не принимает суммы строками.
type Amount struct {
	decimal.Decimal
}

// NewAmount оборачивает decimal.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// MarshalJSON пишет значение без кавычек.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// Document сериализуется в тело запроса POST /api/sales.
type Document struct {
	Sales []Sale `json:"sales"`
}

type Sale struct {
	Header   Header     `json:"sale"`
	Customer Customer   `json:"customer"`
	Items    []LineItem `json:"items"`
	Payments []Payment  `json:"payments"`
}

type Header struct {
	InvoiceType          InvoiceType `json:"invoice_type"`
	PhysicalPOSID        string      `json:"physical_pos_id"`
	TotalQuantity        int         `json:"total_quantity"`
	TotalAmount          Amount      `json:"total_amount"`
	TotalVatableAmount   Amount      `json:"total_vatable_amount"`
	VAT                  Amount      `json:"vat"`
	ExternalID           string      `json:"external_id"`
	ExternalPostID       string      `json:"external_post_id"`
	ParentInvoiceNumber  *string     `json:"parent_invoice_number"`
	ParentInvoiceStoreID *string     `json:"parent_invoice_store_id"`
}

type Customer struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	MailingList bool   `json:"mailing_list"`
}

type LineItem struct {
	RowNumber int    `json:"row_number"`
	Quantity  int    `json:"quantity"`
	UnitPrice Amount `json:"unit_price"`
	ItemCode  string `json:"item_code"`
	Barcode   string `json:"barcode"`
	ItemDesc  string `json:"item_desc"`
	VAT       Amount `json:"vat"`
	// DiscountAmount отсутствует у строки доставки.
	DiscountAmount *Amount `json:"discountAmount,omitempty"`
}

type Payment struct {
	Method      int    `json:"method"`
	Amount      Amount `json:"amount"`
	VoucherType string `json:"voucher_type"`
}

// Sale возвращает единственный чек документа.
func (d Document) Sale() Sale {
	if len(d.Sales) == 0 {
		return Sale{}
	}
	return d.Sales[0]
}
