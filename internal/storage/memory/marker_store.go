package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

type markerStoreInMemory struct {
	mu      sync.RWMutex
	markers map[string]time.Time
}

// NewMarkerStore создаёт in-memory реализацию MarkerStore.
func NewMarkerStore() domain.MarkerStore {
	return &markerStoreInMemory{markers: make(map[string]time.Time)}
}

func (s *markerStoreInMemory) Get(name string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.markers[name]
	if !ok {
		return time.Time{}, domain.ErrMarkerNotFound
	}
	return at, nil
}

func (s *markerStoreInMemory) Set(name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markers[name] = at.UTC()
	return nil
}

var _ domain.MarkerStore = (*markerStoreInMemory)(nil)
