package domain

import "time"

// NoteKind классифицирует заметки аудита заказа.
type NoteKind string

const (
	NoteKindInfo    NoteKind = "info"
	NoteKindSuccess NoteKind = "success"
	NoteKindFailure NoteKind = "failure"
	// Отправка отклонена проверкой предусловий.
	NoteKindSkipped NoteKind = "skipped"
)

// OrderNote — запись в журнале аудита заказа. Журнал только дополняется.
type OrderNote struct {
	OrderID  string
	Kind     NoteKind
	Message  string
	Occurred time.Time
}
