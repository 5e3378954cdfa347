package httpapi

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
	"github.com/vladislavdragonenkov/positsync/internal/service/sales"
)

type errorResponse struct {
	Error string `json:"error"`
}

type resultResponse struct {
	OrderID   string `json:"order_id"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	InvoiceID string `json:"invoice_id,omitempty"`
	StoreID   string `json:"store_id,omitempty"`
}

func newResultResponse(result sales.Result) resultResponse {
	return resultResponse{
		OrderID:   result.OrderID,
		Outcome:   string(result.Outcome),
		Reason:    result.ReasonText(),
		InvoiceID: result.InvoiceID,
		StoreID:   result.StoreID,
	}
}

type syncResponse struct {
	State             string     `json:"state"`
	SaleSent          bool       `json:"sale_sent"`
	RefundSent        bool       `json:"refund_sent"`
	DebitInvoiceID    string     `json:"debit_invoice_id,omitempty"`
	DebitStoreID      string     `json:"debit_store_id,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	RefundRequestedAt *time.Time `json:"refund_requested_at,omitempty"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
}

type orderSummary struct {
	ID        string          `json:"id"`
	Number    string          `json:"number"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Customer  string          `json:"customer"`
	Sync      syncResponse    `json:"sync"`
	CreatedAt time.Time       `json:"created_at"`
}

type noteResponse struct {
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred"`
}

type orderResponse struct {
	orderSummary
	Version int64          `json:"version"`
	Notes   []noteResponse `json:"notes"`
}

type inventoryResponse struct {
	Fetched   int       `json:"fetched"`
	Updated   int       `json:"updated"`
	Unchanged int       `json:"unchanged"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

func newOrderSummary(order domain.Order) orderSummary {
	st := order.Sync
	return orderSummary{
		ID:       order.ID,
		Number:   order.DisplayNumber(),
		Status:   string(order.Status),
		Total:    order.Totals.Total,
		Customer: strings.TrimSpace(order.Billing.FirstName + " " + order.Billing.LastName),
		Sync: syncResponse{
			State:             string(domain.DeriveState(st)),
			SaleSent:          st.SaleSent,
			RefundSent:        st.RefundSent,
			DebitInvoiceID:    st.DebitInvoiceID,
			DebitStoreID:      st.DebitStoreID,
			LastError:         st.LastError,
			RefundRequestedAt: st.RefundRequestedAt,
			LastAttemptAt:     st.LastAttemptAt,
		},
		CreatedAt: order.CreatedAt,
	}
}

func newOrderResponse(order domain.Order, notes []domain.OrderNote) orderResponse {
	resp := orderResponse{
		orderSummary: newOrderSummary(order),
		Version:      order.Version,
		Notes:        make([]noteResponse, 0, len(notes)),
	}
	for _, note := range notes {
		resp.Notes = append(resp.Notes, noteResponse{
			Kind:     string(note.Kind),
			Message:  note.Message,
			Occurred: note.Occurred,
		})
	}
	return resp
}
