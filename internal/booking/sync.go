package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/chain"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/logging"
)

// Action identifies a locally-initiated ledger submission for the
// optimistic write path.
type Action string

const (
	ActionPay        Action = "pay"
	ActionStartWork  Action = "start_work"
	ActionSubmitWork Action = "submit_work"
	ActionRelease    Action = "release"
	ActionCancel     Action = "cancel"
	ActionDispute    Action = "dispute"
)

// StateReader reads the authoritative escrow record for a request id.
type StateReader interface {
	ReadEscrow(ctx context.Context, requestID uint64) (chain.EscrowRecord, error)
}

// Synchronizer owns all writes to Booking records. The optimistic path
// gives immediate feedback after a broadcast is accepted; the
// reconciliation path derives status fields from the escrow record and
// always wins over optimistic values.
type Synchronizer struct {
	store    Store
	reader   StateReader
	notifier *Notifier

	// Per-booking ordering of reconciled writes. Concurrent
	// reconciliations against the same immutable record converge to the
	// same result; the lock only keeps notification order aligned with
	// commit order.
	locks sync.Map
}

// NewSynchronizer creates the booking synchronizer.
func NewSynchronizer(store Store, reader StateReader, notifier *Notifier) *Synchronizer {
	return &Synchronizer{store: store, reader: reader, notifier: notifier}
}

func (s *Synchronizer) bookingLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// paymentRank orders payment statuses along the ledger's monotonic
// progression so a stale reconciliation can never regress a newer one.
func paymentRank(p PaymentStatus) int {
	switch p {
	case PaymentUnpaid:
		return 0
	case PaymentEscrowed:
		return 1
	case PaymentPaid, PaymentRefunded:
		return 2
	}
	return 0
}

// ApplyOptimistic records a provisional state change immediately after a
// transaction is accepted for broadcast. The value is a liveness hint;
// the next reconciliation overwrites it with derived state.
func (s *Synchronizer) ApplyOptimistic(ctx context.Context, bookingID string, action Action, txHash string) (*Booking, error) {
	mu := s.bookingLock(bookingID)
	mu.Lock()
	defer mu.Unlock()

	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionPay:
		b.PaymentStatus = PaymentEscrowed
		b.TxHash = txHash
	case ActionStartWork:
		b.Status = StatusInProgress
	case ActionSubmitWork:
		b.Status = StatusCompleted
	case ActionRelease:
		b.PaymentStatus = PaymentPaid
		b.Status = StatusCompleted
	case ActionCancel:
		b.PaymentStatus = PaymentRefunded
		b.Status = StatusCancelled
	case ActionDispute:
		b.Status = StatusDisputed
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	b.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, b); err != nil {
		return nil, err
	}

	s.notifier.Publish(bookingID, Update{Kind: UpdateBooking, Booking: b})
	return b, nil
}

// SetRequestID links the ledger-assigned request id recovered from the
// payment receipt. Idempotent; a differing id for the same booking is a
// derivation bug and is reported, never papered over.
func (s *Synchronizer) SetRequestID(ctx context.Context, bookingID string, requestID uint64) (*Booking, error) {
	mu := s.bookingLock(bookingID)
	mu.Lock()
	defer mu.Unlock()

	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.RequestID != nil {
		if *b.RequestID != requestID {
			return nil, fmt.Errorf("%w: request id %d already linked, got %d", ErrReconcileConflict, *b.RequestID, requestID)
		}
		return b, nil
	}

	b.RequestID = &requestID
	b.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, b); err != nil {
		return nil, err
	}

	s.notifier.Publish(bookingID, Update{Kind: UpdateBooking, Booking: b})
	return b, nil
}

// ApplyReconciled sets the booking's status fields to values derived
// deterministically from the escrow record, replacing any optimistic
// value. Applying the same record twice is a no-op; a record ranked
// below the last reconciled payment status is stale and skipped.
func (s *Synchronizer) ApplyReconciled(ctx context.Context, bookingID string, rec chain.EscrowRecord) (*Booking, error) {
	mu := s.bookingLock(bookingID)
	mu.Lock()
	defer mu.Unlock()

	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if b.RequestID != nil && *b.RequestID != rec.RequestID {
		return nil, fmt.Errorf("%w: booking %s is linked to request %d, record is for %d",
			ErrReconcileConflict, bookingID, *b.RequestID, rec.RequestID)
	}

	status, payment := Derive(rec)

	// A ledger-confirmed refund deleted the escrow record; whatever a
	// later read returns for that id is meaningless.
	if b.ReconciledPayment == PaymentRefunded {
		return b, nil
	}
	// Stale record observed late: flags only move false→true on the
	// ledger, so a derivation ranked below the last *reconciled* value
	// is an out-of-order read. The rank guard never compares against
	// optimistic values: those are hints, and reconciliation replaces
	// them even when it moves the status backwards (a reverted release
	// or cancel must not stick).
	if paymentRank(payment) < paymentRank(b.ReconciledPayment) {
		logging.L(ctx).Debug("skipping stale reconciliation",
			"booking_id", bookingID,
			"reconciled", string(b.ReconciledPayment),
			"derived", string(payment),
		)
		return b, nil
	}

	changed := b.Status != status || b.PaymentStatus != payment ||
		b.ReconciledPayment != payment || b.RequestID == nil
	if !changed {
		return b, nil
	}

	b.Status = status
	b.PaymentStatus = payment
	b.ReconciledPayment = payment
	if b.RequestID == nil {
		id := rec.RequestID
		b.RequestID = &id
	}
	b.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, b); err != nil {
		return nil, err
	}

	s.notifier.Publish(bookingID, Update{Kind: UpdateBooking, Booking: b})
	return b, nil
}

// ConfirmCancellation finalizes a refund once the cancel transaction's
// receipt confirms. The escrow record carries no refund flag (the
// contract removes the entry), so the receipt is the only ledger fact a
// refund can be pinned to; until it lands the optimistic cancelled state
// stays overwritable by reconciliation.
func (s *Synchronizer) ConfirmCancellation(ctx context.Context, bookingID string) (*Booking, error) {
	mu := s.bookingLock(bookingID)
	mu.Lock()
	defer mu.Unlock()

	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ReconciledPayment == PaymentRefunded {
		return b, nil
	}
	if b.ReconciledPayment == PaymentPaid {
		return nil, fmt.Errorf("%w: booking %s already reconciled as paid", ErrReconcileConflict, bookingID)
	}

	b.Status = StatusCancelled
	b.PaymentStatus = PaymentRefunded
	b.ReconciledPayment = PaymentRefunded
	b.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, b); err != nil {
		return nil, err
	}

	s.notifier.Publish(bookingID, Update{Kind: UpdateBooking, Booking: b})
	return b, nil
}

// Reconcile reads the escrow record and applies it. On read failure the
// booking keeps its last-known-good state and the error is returned for
// a scheduled retry — never guessed around.
func (s *Synchronizer) Reconcile(ctx context.Context, bookingID string) (*Booking, error) {
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.RequestID == nil {
		// Nothing on the ledger yet; the optimistic state stands.
		return b, nil
	}

	rec, err := s.reader.ReadEscrow(ctx, *b.RequestID)
	if err != nil {
		return nil, err
	}
	return s.ApplyReconciled(ctx, bookingID, rec)
}

// Derive maps the escrow record's flag triple to off-chain statuses.
// It is a pure function: same record in, same statuses out.
func Derive(rec chain.EscrowRecord) (Status, PaymentStatus) {
	switch {
	case rec.PaymentReleased:
		// Release is terminal even after a dispute (arbitration resolved
		// in the provider's favor).
		return StatusCompleted, PaymentPaid
	case rec.Disputed:
		return StatusDisputed, PaymentEscrowed
	case rec.Completed:
		return StatusCompleted, PaymentEscrowed
	default:
		return StatusInProgress, PaymentEscrowed
	}
}

// NormalizeAddr lower-cases a ledger address for storage and comparison.
func NormalizeAddr(addr string) string {
	return strings.ToLower(addr)
}
