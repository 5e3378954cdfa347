package domain

import "time"

// SyncState — метаданные заказа о том, что уже передано в POSIT.
// Запись никогда не удаляется: это журнал обмена с удалённой стороной.
type SyncState struct {
	SaleSent       bool
	RefundSent     bool
	DebitInvoiceID string
	DebitStoreID   string
	// Причина последней неудачной отправки; очищается при успехе.
	LastError string
	// RefundRequestedAt выставляется, когда принято событие отмены или возврата.
	RefundRequestedAt *time.Time
	LastAttemptAt     *time.Time
}

// SyncStatus — производное состояние синхронизации.
type SyncStatus string

const (
	SyncStatusUnsent          SyncStatus = "unsent"
	SyncStatusSent            SyncStatus = "sent"
	SyncStatusRefundRequested SyncStatus = "refund_requested"
	SyncStatusRefunded        SyncStatus = "refunded"
	SyncStatusFailed          SyncStatus = "failed"
)

// DeriveState вычисляет состояние только по флагам, отдельный enum не хранится.
func DeriveState(s SyncState) SyncStatus {
	switch {
	case s.RefundSent:
		return SyncStatusRefunded
	case s.LastError != "":
		return SyncStatusFailed
	case s.SaleSent && s.RefundRequestedAt != nil:
		return SyncStatusRefundRequested
	case s.SaleSent:
		return SyncStatusSent
	default:
		return SyncStatusUnsent
	}
}

// HasDebitLinkage сообщает, что известны номер чека продажи и магазин.
func (s SyncState) HasDebitLinkage() bool {
	return s.DebitInvoiceID != "" && s.DebitStoreID != ""
}

// CheckSale проверяет, можно ли отправить продажу.
func (s SyncState) CheckSale() error {
	if s.SaleSent {
		return ErrAlreadySent
	}
	return nil
}

// CheckRefund проверяет предусловия возврата в том порядке, в котором их видит оператор.
func (s SyncState) CheckRefund() error {
	if !s.SaleSent {
		return ErrNotYetSold
	}
	if s.RefundSent {
		return ErrAlreadyRefunded
	}
	if s.DebitInvoiceID == "" || s.DebitStoreID == "" {
		return ErrMissingInvoiceLinkage
	}
	return nil
}
