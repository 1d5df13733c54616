package evidence

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory evidence store for demo/development mode.
type MemoryStore struct {
	byBooking map[string][]*Evidence
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory evidence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byBooking: make(map[string][]*Evidence)}
}

func (m *MemoryStore) Create(ctx context.Context, e *Evidence) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byBooking[e.BookingID] = append(m.byBooking[e.BookingID], copyEvidence(e))
	return nil
}

func (m *MemoryStore) ListByBooking(ctx context.Context, bookingID string) ([]*Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.byBooking[bookingID]
	result := make([]*Evidence, 0, len(list))
	for _, e := range list {
		result = append(result, copyEvidence(e))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func copyEvidence(e *Evidence) *Evidence {
	cp := *e
	cp.BlobURLs = make([]string, len(e.BlobURLs))
	copy(cp.BlobURLs, e.BlobURLs)
	return &cp
}
