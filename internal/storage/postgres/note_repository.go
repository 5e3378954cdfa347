package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

type noteRepository struct {
	db *sql.DB
}

// NewNoteRepository создаёт PostgreSQL-реализацию NoteRepository.
func NewNoteRepository(store *Store) domain.NoteRepository {
	return &noteRepository{db: store.DB()}
}

func (r *noteRepository) Append(note domain.OrderNote) error {
	if note.OrderID == "" {
		return domain.ErrOrderIDRequired
	}
	if note.Occurred.IsZero() {
		note.Occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO order_notes (order_id, kind, message, occurred)
		VALUES ($1,$2,$3,$4)
	`, note.OrderID, string(note.Kind), note.Message, note.Occurred); err != nil {
		return fmt.Errorf("append order note: %w", err)
	}

	return nil
}

func (r *noteRepository) List(orderID string) ([]domain.OrderNote, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, kind, message, occurred
		FROM order_notes
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order notes: %w", err)
	}
	defer rows.Close()

	notes := make([]domain.OrderNote, 0)
	for rows.Next() {
		var (
			note domain.OrderNote
			kind string
		)
		if err := rows.Scan(&note.OrderID, &kind, &note.Message, &note.Occurred); err != nil {
			return nil, fmt.Errorf("scan order note: %w", err)
		}
		note.Kind = domain.NoteKind(kind)
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order notes: %w", err)
	}

	return notes, nil
}

var _ domain.NoteRepository = (*noteRepository)(nil)
