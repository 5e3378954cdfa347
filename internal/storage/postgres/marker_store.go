package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

type markerStore struct {
	db *sql.DB
}

// NewMarkerStore создаёт PostgreSQL-реализацию MarkerStore.
func NewMarkerStore(store *Store) domain.MarkerStore {
	return &markerStore{db: store.DB()}
}

func (s *markerStore) Get(name string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var at time.Time
	err := s.db.QueryRowContext(ctx, `SELECT marked_at FROM sync_markers WHERE name = $1`, name).Scan(&at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, domain.ErrMarkerNotFound
		}
		return time.Time{}, fmt.Errorf("select marker %s: %w", name, err)
	}
	return at.UTC(), nil
}

func (s *markerStore) Set(name string, at time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_markers (name, marked_at)
		VALUES ($1,$2)
		ON CONFLICT (name) DO UPDATE SET marked_at = EXCLUDED.marked_at
	`, name, at.UTC()); err != nil {
		return fmt.Errorf("set marker %s: %w", name, err)
	}
	return nil
}

var _ domain.MarkerStore = (*markerStore)(nil)
