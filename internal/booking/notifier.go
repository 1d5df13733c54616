package booking

import (
	"sync"
)

// UpdateKind classifies what changed.
type UpdateKind string

const (
	UpdateBooking  UpdateKind = "booking_updated"
	UpdateEvidence UpdateKind = "evidence_added"
	UpdateDispute  UpdateKind = "dispute_raised"
)

// Update is delivered to every subscriber of a booking.
type Update struct {
	Kind    UpdateKind `json:"kind"`
	Booking *Booking   `json:"booking,omitempty"`
}

const subscriberBuffer = 16

// Notifier fans booking updates out to all observers of a booking id.
// Subscription is keyed purely by booking identifier — both
// counterparties and any number of extra sessions share the stream.
// Updates for a single booking are delivered in commit order; a
// subscriber that falls subscriberBuffer updates behind is dropped.
type Notifier struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]chan Update
	nextID uint64
}

// NewNotifier creates a change notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[uint64]chan Update)}
}

// Subscribe registers an observer for a booking. The returned cancel
// function is idempotent and must be called to release the subscription.
func (n *Notifier) Subscribe(bookingID string) (<-chan Update, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Update, subscriberBuffer)
	if n.subs[bookingID] == nil {
		n.subs[bookingID] = make(map[uint64]chan Update)
	}
	id := n.nextID
	n.nextID++
	n.subs[bookingID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if m, ok := n.subs[bookingID]; ok {
				if c, ok := m[id]; ok {
					delete(m, id)
					close(c)
				}
				if len(m) == 0 {
					delete(n.subs, bookingID)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers an update to every subscriber of the booking.
// Publishing under the lock keeps per-booking delivery in commit order.
// Slow subscribers are evicted rather than blocking the writer.
func (n *Notifier) Publish(bookingID string, upd Update) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, ch := range n.subs[bookingID] {
		select {
		case ch <- upd:
		default:
			delete(n.subs[bookingID], id)
			close(ch)
		}
	}
	if len(n.subs[bookingID]) == 0 {
		delete(n.subs, bookingID)
	}
}

// SubscriberCount reports the current observers of a booking.
func (n *Notifier) SubscriberCount(bookingID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[bookingID])
}
