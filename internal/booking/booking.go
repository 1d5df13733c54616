// Package booking owns the mutable off-chain record of a paid service
// request and keeps it reconciled with the immutable on-ledger escrow
// record.
//
// The authoritative financial state lives on the ledger; the Booking row
// caches a past read of it. All writes flow through the Synchronizer —
// an optimistic path for locally-submitted transactions and a
// reconciliation path that derives fields deterministically from the
// escrow record. Reconciliation always wins.
package booking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/pagination"
)

var (
	ErrNotFound          = errors.New("booking: not found")
	ErrReconcileConflict = errors.New("booking: reconciled ledger state conflicts with stored record")
	ErrInvalidAction     = errors.New("booking: invalid action for current state")
)

// Status is the human-readable lifecycle state of a booking.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusDisputed   Status = "disputed"
)

// PaymentStatus tracks where the money is.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentEscrowed PaymentStatus = "escrowed"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Booking is one priced service request. The ledger request identifier
// stays nil until the payment transaction confirms; until then every
// ledger-dependent action is disabled.
type Booking struct {
	ID            string        `json:"id"`
	RequesterAddr string        `json:"requesterAddr"`
	ProviderAddr  string        `json:"providerAddr"`
	Requirements  string        `json:"requirements"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	TxHash        string        `json:"txHash,omitempty"`
	RequestID     *uint64       `json:"requestId,omitempty"`

	// ReconciledPayment is the most recent payment status backed by a
	// ledger fact (a state read or a confirmed receipt). Empty until the
	// first reconciliation; optimistic writes never touch it.
	ReconciledPayment PaymentStatus `json:"-"`
	MethodSymbol  string        `json:"method"`
	Amount        string        `json:"amount"` // human-decimal, in the method's precision
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// IsTerminal returns true when no further ledger action can change the
// booking. Only a reconciled payment status counts: an optimistic paid
// or refunded value is still awaiting its ledger fact.
func (b *Booking) IsTerminal() bool {
	return b.ReconciledPayment == PaymentPaid || b.ReconciledPayment == PaymentRefunded
}

// Store persists bookings.
type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	Update(ctx context.Context, b *Booking) error
	// ListByParticipant returns bookings the address requested or provides,
	// newest first. A non-nil cursor resumes after that position.
	ListByParticipant(ctx context.Context, addr string, cursor *pagination.Cursor, limit int) ([]*Booking, error)

	// ListAwaitingRequestID returns bookings whose payment transaction was
	// broadcast but whose ledger request id is still unknown.
	ListAwaitingRequestID(ctx context.Context, limit int) ([]*Booking, error)

	// ListUnsettled returns non-terminal bookings that have a request id
	// and therefore an escrow record to reconcile against.
	ListUnsettled(ctx context.Context, limit int) ([]*Booking, error)
}

// NewID generates a booking identifier.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("bkg_%x", b)
}
