package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// noteRepositoryInMemory хранит журнал аудита в памяти (для разработки/тестов).
type noteRepositoryInMemory struct {
	mu    sync.RWMutex
	notes map[string][]domain.OrderNote
}

// NewNoteRepository создаёт in-memory реализацию NoteRepository.
func NewNoteRepository() domain.NoteRepository {
	return &noteRepositoryInMemory{notes: make(map[string][]domain.OrderNote)}
}

// Append добавляет заметку; пустое время заменяется текущим.
func (r *noteRepositoryInMemory) Append(note domain.OrderNote) error {
	if note.OrderID == "" {
		return domain.ErrOrderIDRequired
	}
	if note.Occurred.IsZero() {
		note.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.notes[note.OrderID] = append(r.notes[note.OrderID], note)

	sort.SliceStable(r.notes[note.OrderID], func(i, j int) bool {
		return r.notes[note.OrderID][i].Occurred.Before(r.notes[note.OrderID][j].Occurred)
	})

	return nil
}

// List возвращает заметки заказа в хронологическом порядке.
func (r *noteRepositoryInMemory) List(orderID string) ([]domain.OrderNote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	notes := r.notes[orderID]
	result := make([]domain.OrderNote, len(notes))
	copy(result, notes)
	return result, nil
}

var _ domain.NoteRepository = (*noteRepositoryInMemory)(nil)
