package dispute

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory dispute store for demo/development mode.
type MemoryStore struct {
	disputes map[string]*Dispute
	mu       sync.Mutex
}

// NewMemoryStore creates a new in-memory dispute store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{disputes: make(map[string]*Dispute)}
}

func (m *MemoryStore) Create(ctx context.Context, d *Dispute) error {
	if d.Reason == "" {
		return ErrEmptyReason
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.Active {
		for _, existing := range m.disputes {
			if existing.BookingID == d.BookingID && existing.Active {
				return ErrActiveExists
			}
		}
	}
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *MemoryStore) GetActive(ctx context.Context, bookingID string) (*Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.disputes {
		if d.BookingID == bookingID && d.Active {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Resolve(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.disputes[id]
	if !ok {
		return ErrNotFound
	}
	d.Active = false
	d.ResolvedAt = &at
	return nil
}

func (m *MemoryStore) ListByBooking(ctx context.Context, bookingID string) ([]*Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Dispute
	for _, d := range m.disputes {
		if d.BookingID == bookingID {
			cp := *d
			result = append(result, &cp)
		}
	}
	return result, nil
}
