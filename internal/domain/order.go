package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus повторяет статусы заказа на стороне витрины.
type OrderStatus string

const (
	// Заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// Заказ оплачен и собирается; его позиции резервируют сток.
	OrderStatusProcessing OrderStatus = "processing"
	// Заказ ожидает ручного подтверждения.
	OrderStatusOnHold OrderStatus = "on-hold"
	// Заказ выполнен, продажа уходит в POSIT.
	OrderStatusCompleted OrderStatus = "completed"
	// Заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
	// Заказ возвращён клиенту.
	OrderStatusRefunded OrderStatus = "refunded"
	// Отправка в POSIT не удалась, нужен ручной повтор.
	OrderStatusFailed OrderStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusOnHold, OrderStatusCompleted,
		OrderStatusCancelled, OrderStatusRefunded, OrderStatusFailed:
		return true
	default:
		return false
	}
}

// Billing содержит платёжные данные покупателя.
type Billing struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address1  string
	Address2  string
	City      string
}

// OrderLine представляет одну позицию заказа. Суммы указаны за всю строку.
type OrderLine struct {
	// ID позиции в заказе витрины.
	ID string
	// ProductID пуст, если товар уже удалён из каталога; такие позиции не попадают в POSIT.
	ProductID string
	SKU       string
	Name      string
	Quantity  int
	// Сумма до скидки без налога.
	Subtotal decimal.Decimal
	// Налог с суммы до скидки.
	SubtotalTax decimal.Decimal
	// Сумма после скидки без налога.
	Total decimal.Decimal
	// Налог с суммы после скидки.
	TotalTax decimal.Decimal
	// Облагается ли товар налогом.
	Taxable bool
}

// HasProduct сообщает, ссылается ли позиция на существующий товар.
func (l OrderLine) HasProduct() bool {
	return l.ProductID != ""
}

// Totals содержит итоговые суммы заказа.
type Totals struct {
	Subtotal decimal.Decimal
	// Tax включает налог на доставку.
	Tax         decimal.Decimal
	Shipping    decimal.Decimal
	ShippingTax decimal.Decimal
	Total       decimal.Decimal
}

// Order хранит снимок заказа витрины вместе с состоянием синхронизации.
type Order struct {
	ID             string
	Number         string
	Status         OrderStatus
	Billing        Billing
	MailingList    bool
	ShippingMethod string
	Lines          []OrderLine
	Totals         Totals
	Sync           SyncState
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DisplayNumber возвращает номер заказа для заметок и писем.
func (o *Order) DisplayNumber() string {
	if o.Number != "" {
		return o.Number
	}
	return o.ID
}

// ItemCount считает единицы товара во всех позициях.
func (o *Order) ItemCount() int {
	var n int
	for _, line := range o.Lines {
		n += line.Quantity
	}
	return n
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
	}

	return errs
}
