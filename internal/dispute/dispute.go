// Package dispute stores the off-chain narrative of escrow disputes.
//
// The ledger's disputed flag is the authoritative fact; this package
// keeps the who/why. At most one active dispute may exist per booking.
package dispute

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("dispute: not found")
	ErrActiveExists = errors.New("dispute: an active dispute already exists for this booking")
	ErrEmptyReason  = errors.New("dispute: reason is required")
)

// Dispute records who raised a dispute and why.
type Dispute struct {
	ID          string     `json:"id"`
	BookingID   string     `json:"bookingId"`
	RaisedBy    string     `json:"raisedBy"`
	EvidenceURL string     `json:"evidenceUrl,omitempty"`
	Reason      string     `json:"reason"`
	Active      bool       `json:"active"`
	TxHash      string     `json:"txHash,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// Store persists disputes. Create must reject a second active dispute
// for the same booking.
type Store interface {
	Create(ctx context.Context, d *Dispute) error
	GetActive(ctx context.Context, bookingID string) (*Dispute, error)
	Resolve(ctx context.Context, id string, at time.Time) error
	ListByBooking(ctx context.Context, bookingID string) ([]*Dispute, error)
}

// NewID generates a dispute identifier.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("dsp_%x", b)
}
