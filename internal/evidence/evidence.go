// Package evidence stores work-completion evidence for bookings.
//
// Evidence is append-only: once submitted it is never mutated, only
// superseded by a newer booking state. Blob references are opaque URLs
// obtained from the blob store and never interpreted here.
package evidence

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("evidence: not found")
	ErrEmpty    = errors.New("evidence: blob references and notes are required")
)

// Evidence is one submission of completed-work proof.
type Evidence struct {
	ID            string    `json:"id"`
	BookingID     string    `json:"bookingId"`
	SubmitterAddr string    `json:"submitterAddr"`
	BlobURLs      []string  `json:"blobUrls"`
	Notes         string    `json:"notes"`
	TxHash        string    `json:"txHash,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Validate enforces the submission guard: non-empty evidence and notes.
func (e *Evidence) Validate() error {
	if len(e.BlobURLs) == 0 || e.Notes == "" {
		return ErrEmpty
	}
	return nil
}

// Store persists evidence. There is no update operation.
type Store interface {
	Create(ctx context.Context, e *Evidence) error
	ListByBooking(ctx context.Context, bookingID string) ([]*Evidence, error)
}

// NewID generates an evidence identifier.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("evd_%x", b)
}
