package booking

import (
	"context"
	"sort"
	"sync"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/pagination"
)

// MemoryStore is an in-memory booking store for demo/development mode.
type MemoryStore struct {
	bookings map[string]*Booking
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory booking store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]*Booking)}
}

func (m *MemoryStore) Create(ctx context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = copyBooking(b)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBooking(b), nil
}

func (m *MemoryStore) Update(ctx context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	m.bookings[b.ID] = copyBooking(b)
	return nil
}

func (m *MemoryStore) ListByParticipant(ctx context.Context, addr string, cursor *pagination.Cursor, limit int) ([]*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addr = NormalizeAddr(addr)
	var result []*Booking
	for _, b := range m.bookings {
		if b.RequesterAddr != addr && b.ProviderAddr != addr {
			continue
		}
		if cursor != nil && !beforeCursor(b, cursor) {
			continue
		}
		result = append(result, copyBooking(b))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// beforeCursor reports whether b sorts strictly after the cursor position
// in (created_at DESC, id DESC) order.
func beforeCursor(b *Booking, c *pagination.Cursor) bool {
	if b.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return b.CreatedAt.Equal(c.CreatedAt) && b.ID < c.ID
}

func (m *MemoryStore) ListAwaitingRequestID(ctx context.Context, limit int) ([]*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Booking
	for _, b := range m.bookings {
		if b.TxHash != "" && b.RequestID == nil && b.Status != StatusCancelled {
			result = append(result, copyBooking(b))
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) ListUnsettled(ctx context.Context, limit int) ([]*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Booking
	for _, b := range m.bookings {
		if b.RequestID != nil && b.Status != StatusCancelled && !b.IsTerminal() {
			result = append(result, copyBooking(b))
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// copyBooking returns a deep copy to prevent races on shared pointers.
func copyBooking(b *Booking) *Booking {
	cp := *b
	if b.RequestID != nil {
		id := *b.RequestID
		cp.RequestID = &id
	}
	return &cp
}
