// Package engine coordinates paid bookings between the ledger's escrow
// contract and the off-chain booking store.
//
// The flow it owns:
//  1. Precheck gates whether a payment transaction may be submitted
//  2. The submitter broadcasts and returns a transaction hash
//  3. The resolver recovers the ledger-assigned request id from the receipt
//  4. The state reader + synchronizer reconcile the booking record
//  5. The notifier broadcasts the reconciled state to every observer
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/booking"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/chain"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/dispute"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/evidence"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/metrics"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/pagination"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/retry"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/token"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/traces"
)

var (
	ErrInsufficientFunds     = errors.New("engine: insufficient funds")
	ErrAuthorizationRequired = errors.New("engine: spending authorization required")
	ErrNotParticipant        = errors.New("engine: caller is not a participant of this booking")
	ErrProviderOnly          = errors.New("engine: only the provider may perform this action")
	ErrRequesterOnly         = errors.New("engine: only the requester may perform this action")
	ErrNoLedgerLink          = errors.New("engine: payment not confirmed on the ledger yet")
	ErrWindowClosed          = errors.New("engine: dispute window is closed")
	ErrAlreadyCompleted      = errors.New("engine: booking already completed")
)

// DefaultConfirmTimeout bounds how long a payment confirmation is
// tracked inline before the backfill worker takes over.
const DefaultConfirmTimeout = 5 * time.Minute

// Checker classifies payability. Implemented by chain.Checker.
type Checker interface {
	Check(ctx context.Context, payer common.Address, method token.Method, required *big.Int) chain.PrecheckResult
}

// Submitter broadcasts escrow operations. Implemented by chain.Submitter.
type Submitter interface {
	Authorize(ctx context.Context, signer chain.Signer, tokenAddr common.Address, amount *big.Int) (string, error)
	RequestService(ctx context.Context, signer chain.Signer, provider, tokenAddr common.Address, amount *big.Int, requirements string) (string, error)
	SubmitWork(ctx context.Context, signer chain.Signer, requestID uint64, evidenceURLs []string, notes string) (string, error)
	ReleasePayment(ctx context.Context, signer chain.Signer, requestID uint64) (string, error)
	CancelRequest(ctx context.Context, signer chain.Signer, requestID uint64) (string, error)
	RaiseDispute(ctx context.Context, signer chain.Signer, requestID uint64, reason string) (string, error)
}

// Resolver recovers request ids from receipts and reports transaction
// outcomes. Implemented by chain.Resolver.
type Resolver interface {
	RequestID(ctx context.Context, txHash string) (uint64, error)
	WaitForRequestID(ctx context.Context, txHash string, timeout time.Duration) (uint64, error)
	Confirm(ctx context.Context, txHash string, timeout time.Duration) error
}

// Reader reads escrow records. Implemented by chain.StateReader.
type Reader interface {
	ReadEscrow(ctx context.Context, requestID uint64) (chain.EscrowRecord, error)
}

// Engine is the escrow coordination engine.
type Engine struct {
	checker   Checker
	submitter Submitter
	resolver  Resolver
	reader    Reader

	bookings booking.Store
	syncer   *booking.Synchronizer
	notifier *booking.Notifier
	evidence evidence.Store
	disputes dispute.Store

	logger         *slog.Logger
	confirmTimeout time.Duration
	now            func() time.Time

	bg sync.WaitGroup
}

// Option configures the engine.
type Option func(*Engine)

// WithConfirmTimeout overrides the confirmation tracking timeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(e *Engine) { e.confirmTimeout = d }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates the engine.
func New(
	checker Checker,
	submitter Submitter,
	resolver Resolver,
	reader Reader,
	bookings booking.Store,
	syncer *booking.Synchronizer,
	notifier *booking.Notifier,
	evidenceStore evidence.Store,
	disputeStore dispute.Store,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		checker:        checker,
		submitter:      submitter,
		resolver:       resolver,
		reader:         reader,
		bookings:       bookings,
		syncer:         syncer,
		notifier:       notifier,
		evidence:       evidenceStore,
		disputes:       disputeStore,
		logger:         logger,
		confirmTimeout: DefaultConfirmTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close waits for background confirmation trackers to drain.
func (e *Engine) Close() {
	e.bg.Wait()
}

// -----------------------------------------------------------------------------
// Preconditions
// -----------------------------------------------------------------------------

// CheckPrecondition reports whether payer can pay amount with the named
// method. The result is never cached; callers re-run it after every
// authorization transaction.
func (e *Engine) CheckPrecondition(ctx context.Context, payer common.Address, methodSymbol, amount string) (chain.PrecheckResult, error) {
	ctx, span := traces.StartSpan(ctx, "engine.CheckPrecondition")
	defer span.End()

	method, err := token.BySymbol(methodSymbol)
	if err != nil {
		return chain.PrecheckResult{}, err
	}
	required, err := token.Parse(amount, method.Decimals)
	if err != nil {
		return chain.PrecheckResult{}, err
	}

	res := e.checker.Check(ctx, payer, method, required)
	switch {
	case res.Err != nil:
		metrics.PrechecksTotal.WithLabelValues("check_failed").Inc()
	case res.Payable:
		metrics.PrechecksTotal.WithLabelValues("payable").Inc()
	case res.NeedsAuthorization:
		metrics.PrechecksTotal.WithLabelValues("needs_authorization").Inc()
	default:
		metrics.PrechecksTotal.WithLabelValues("insufficient_funds").Inc()
	}
	return res, nil
}

// Authorize grants the escrow contract a token spending allowance.
func (e *Engine) Authorize(ctx context.Context, signer chain.Signer, methodSymbol, amount string) (string, error) {
	ctx, span := traces.StartSpan(ctx, "engine.Authorize")
	defer span.End()

	method, err := token.BySymbol(methodSymbol)
	if err != nil {
		return "", err
	}
	if method.IsNative() {
		return "", fmt.Errorf("engine: the native method needs no authorization")
	}
	raw, err := token.Parse(amount, method.Decimals)
	if err != nil {
		return "", err
	}

	txHash, err := e.submitter.Authorize(ctx, signer, method.Address, raw)
	if err != nil {
		metrics.TxSubmissionsTotal.WithLabelValues("authorize", "error").Inc()
		return "", err
	}
	metrics.TxSubmissionsTotal.WithLabelValues("authorize", "ok").Inc()
	return txHash, nil
}

// -----------------------------------------------------------------------------
// Payment
// -----------------------------------------------------------------------------

// PayRequest contains the parameters for creating and paying a booking.
type PayRequest struct {
	ProviderAddr string `json:"providerAddr" binding:"required"`
	MethodSymbol string `json:"method" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Requirements string `json:"requirements" binding:"required"`
}

// Pay creates the booking optimistically, gates submission on a fresh
// precheck, broadcasts the payment, and tracks its confirmation in the
// background. The booking exists from the moment the payer decides to
// pay — before ledger confirmation.
func (e *Engine) Pay(ctx context.Context, signer chain.Signer, req PayRequest) (*booking.Booking, string, error) {
	ctx, span := traces.StartSpan(ctx, "engine.Pay")
	defer span.End()

	method, err := token.BySymbol(req.MethodSymbol)
	if err != nil {
		return nil, "", err
	}
	raw, err := token.Parse(req.Amount, method.Decimals)
	if err != nil {
		return nil, "", err
	}

	payer := signer.Address()
	pre := e.checker.Check(ctx, payer, method, raw)
	switch {
	case pre.Err != nil:
		return nil, "", pre.Err
	case pre.NeedsAuthorization:
		return nil, "", ErrAuthorizationRequired
	case !pre.Payable:
		return nil, "", ErrInsufficientFunds
	}

	now := e.now().UTC()
	b := &booking.Booking{
		ID:            booking.NewID(),
		RequesterAddr: booking.NormalizeAddr(payer.Hex()),
		ProviderAddr:  booking.NormalizeAddr(req.ProviderAddr),
		Requirements:  req.Requirements,
		Status:        booking.StatusPending,
		PaymentStatus: booking.PaymentUnpaid,
		MethodSymbol:  method.Symbol,
		Amount:        token.Format(raw, method.Decimals),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.bookings.Create(ctx, b); err != nil {
		return nil, "", fmt.Errorf("create booking: %w", err)
	}

	txHash, err := e.submitter.RequestService(ctx, signer, common.HexToAddress(req.ProviderAddr), method.Address, raw, req.Requirements)
	if err != nil {
		metrics.TxSubmissionsTotal.WithLabelValues("request_service", "error").Inc()
		// The booking stays unpaid; the payer may retry against it.
		return b, "", err
	}
	metrics.TxSubmissionsTotal.WithLabelValues("request_service", "ok").Inc()

	updated, err := e.syncer.ApplyOptimistic(ctx, b.ID, booking.ActionPay, txHash)
	if err != nil {
		// The tx is in flight regardless; reconciliation self-heals this.
		e.logger.Error("optimistic update after pay failed", "booking_id", b.ID, "tx", txHash, "error", err)
		updated = b
	}

	e.trackConfirmation(b.ID, txHash)
	return updated, txHash, nil
}

// trackConfirmation resolves the request id for a broadcast payment and
// reconciles the booking once it lands. Runs detached from the request
// context: abandoning the originating call never cancels the chain tx.
func (e *Engine) trackConfirmation(bookingID, txHash string) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.confirmTimeout)
		defer cancel()

		requestID, err := e.resolver.WaitForRequestID(ctx, txHash, e.confirmTimeout)
		if err != nil {
			// The backfill worker retries bookings left without a request id.
			e.logger.Warn("confirmation tracking gave up", "booking_id", bookingID, "tx", txHash, "error", err)
			return
		}
		if _, err := e.syncer.SetRequestID(ctx, bookingID, requestID); err != nil {
			e.logger.Error("linking request id failed", "booking_id", bookingID, "request_id", requestID, "error", err)
			return
		}

		err = retry.Do(ctx, 3, time.Second, func() error {
			_, err := e.syncer.Reconcile(ctx, bookingID)
			return err
		})
		if err != nil {
			metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
			e.logger.Warn("post-confirmation reconcile failed", "booking_id", bookingID, "error", err)
			return
		}
		metrics.ReconciliationsTotal.WithLabelValues("ok").Inc()
	}()
}

// -----------------------------------------------------------------------------
// Provider actions
// -----------------------------------------------------------------------------

// StartWork marks an escrowed booking as in progress. Off-chain only.
func (e *Engine) StartWork(ctx context.Context, caller common.Address, bookingID string) (*booking.Booking, error) {
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.NormalizeAddr(caller.Hex()) != b.ProviderAddr {
		return nil, ErrProviderOnly
	}
	if b.PaymentStatus != booking.PaymentEscrowed {
		return nil, fmt.Errorf("%w: payment is %s", booking.ErrInvalidAction, b.PaymentStatus)
	}
	switch b.Status {
	case booking.StatusPending:
		return e.syncer.ApplyOptimistic(ctx, bookingID, booking.ActionStartWork, "")
	case booking.StatusInProgress:
		// Reconciliation already derived the started state.
		return b, nil
	default:
		return nil, fmt.Errorf("%w: booking is %s", booking.ErrInvalidAction, b.Status)
	}
}

// SubmitEvidence records completion evidence on the ledger and in the
// evidence store. Provider-only; requires non-empty blob references and
// notes and a confirmed ledger link.
func (e *Engine) SubmitEvidence(ctx context.Context, signer chain.Signer, bookingID string, blobURLs []string, notes string) (string, error) {
	ctx, span := traces.StartSpan(ctx, "engine.SubmitEvidence")
	defer span.End()

	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if booking.NormalizeAddr(signer.Address().Hex()) != b.ProviderAddr {
		return "", ErrProviderOnly
	}
	if b.RequestID == nil {
		return "", ErrNoLedgerLink
	}

	ev := &evidence.Evidence{
		ID:            evidence.NewID(),
		BookingID:     bookingID,
		SubmitterAddr: b.ProviderAddr,
		BlobURLs:      blobURLs,
		Notes:         notes,
		CreatedAt:     e.now().UTC(),
	}
	if err := ev.Validate(); err != nil {
		return "", err
	}

	txHash, err := e.submitter.SubmitWork(ctx, signer, *b.RequestID, blobURLs, notes)
	if err != nil {
		metrics.TxSubmissionsTotal.WithLabelValues("submit_work", "error").Inc()
		return "", err
	}
	metrics.TxSubmissionsTotal.WithLabelValues("submit_work", "ok").Inc()

	ev.TxHash = txHash
	if err := e.evidence.Create(ctx, ev); err != nil {
		// The ledger accepted the work; reconciliation will surface the
		// completion flag even if the narrative row is missing.
		e.logger.Error("storing evidence failed", "booking_id", bookingID, "tx", txHash, "error", err)
	}

	if _, err := e.syncer.ApplyOptimistic(ctx, bookingID, booking.ActionSubmitWork, txHash); err != nil {
		e.logger.Error("optimistic update after submit-work failed", "booking_id", bookingID, "error", err)
	}
	e.notifier.Publish(bookingID, booking.Update{Kind: booking.UpdateEvidence})
	e.reconcileLater(bookingID, txHash)
	return txHash, nil
}

// -----------------------------------------------------------------------------
// Requester actions
// -----------------------------------------------------------------------------

// Release releases escrowed funds to the provider. Requester-only.
func (e *Engine) Release(ctx context.Context, signer chain.Signer, bookingID string) (string, error) {
	ctx, span := traces.StartSpan(ctx, "engine.Release")
	defer span.End()

	b, err := e.requesterBooking(ctx, signer, bookingID)
	if err != nil {
		return "", err
	}
	if b.RequestID == nil {
		return "", ErrNoLedgerLink
	}

	txHash, err := e.submitter.ReleasePayment(ctx, signer, *b.RequestID)
	if err != nil {
		metrics.TxSubmissionsTotal.WithLabelValues("release_payment", "error").Inc()
		return "", err
	}
	metrics.TxSubmissionsTotal.WithLabelValues("release_payment", "ok").Inc()

	if _, err := e.syncer.ApplyOptimistic(ctx, bookingID, booking.ActionRelease, txHash); err != nil {
		e.logger.Error("optimistic update after release failed", "booking_id", bookingID, "error", err)
	}
	e.reconcileLater(bookingID, txHash)
	return txHash, nil
}

// Cancel refunds a not-yet-completed booking. Requester-only,
// pre-completion only.
func (e *Engine) Cancel(ctx context.Context, signer chain.Signer, bookingID string) (string, error) {
	ctx, span := traces.StartSpan(ctx, "engine.Cancel")
	defer span.End()

	b, err := e.requesterBooking(ctx, signer, bookingID)
	if err != nil {
		return "", err
	}
	if b.Status == booking.StatusCompleted || b.Status == booking.StatusDisputed {
		return "", ErrAlreadyCompleted
	}
	if b.RequestID == nil {
		return "", ErrNoLedgerLink
	}

	txHash, err := e.submitter.CancelRequest(ctx, signer, *b.RequestID)
	if err != nil {
		metrics.TxSubmissionsTotal.WithLabelValues("cancel_request", "error").Inc()
		return "", err
	}
	metrics.TxSubmissionsTotal.WithLabelValues("cancel_request", "ok").Inc()

	if _, err := e.syncer.ApplyOptimistic(ctx, bookingID, booking.ActionCancel, txHash); err != nil {
		e.logger.Error("optimistic update after cancel failed", "booking_id", bookingID, "error", err)
	}
	e.trackCancellation(bookingID, txHash)
	return txHash, nil
}

// trackCancellation waits for the cancel transaction's receipt. A refund
// leaves no escrow record behind, so confirmation is recorded off-record
// through the synchronizer; a reverted cancel reconciles the booking back
// to its ledger-derived state instead of leaving the optimistic
// cancelled value in place.
func (e *Engine) trackCancellation(bookingID, txHash string) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.confirmTimeout)
		defer cancel()

		err := e.resolver.Confirm(ctx, txHash, e.confirmTimeout)
		switch {
		case err == nil:
			if _, err := e.syncer.ConfirmCancellation(ctx, bookingID); err != nil {
				e.logger.Error("finalizing cancellation failed", "booking_id", bookingID, "tx", txHash, "error", err)
			}
		case errors.Is(err, chain.ErrTxReverted):
			e.logger.Warn("cancel transaction reverted", "booking_id", bookingID, "tx", txHash)
			if _, rErr := e.syncer.Reconcile(ctx, bookingID); rErr != nil {
				e.logger.Warn("reconcile after reverted cancel failed", "booking_id", bookingID, "error", rErr)
			}
		default:
			// Timed out or RPC trouble: the next reconcile-on-read
			// settles the record either way.
			e.logger.Warn("cancel confirmation gave up", "booking_id", bookingID, "tx", txHash, "error", err)
		}
	}()
}

// RaiseDispute disputes a completed booking before its auto-release
// deadline. Requester-only; at most one active dispute per booking.
func (e *Engine) RaiseDispute(ctx context.Context, signer chain.Signer, bookingID, reason, evidenceURL string) (string, error) {
	ctx, span := traces.StartSpan(ctx, "engine.RaiseDispute")
	defer span.End()

	b, err := e.requesterBooking(ctx, signer, bookingID)
	if err != nil {
		return "", err
	}
	if b.RequestID == nil {
		return "", ErrNoLedgerLink
	}

	rec, err := e.reader.ReadEscrow(ctx, *b.RequestID)
	if err != nil {
		return "", err
	}
	if !booking.Window(rec, e.now()).DisputeEligible {
		return "", ErrWindowClosed
	}

	d := &dispute.Dispute{
		ID:          dispute.NewID(),
		BookingID:   bookingID,
		RaisedBy:    b.RequesterAddr,
		EvidenceURL: evidenceURL,
		Reason:      reason,
		Active:      true,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.disputes.Create(ctx, d); err != nil {
		return "", err
	}

	txHash, err := e.submitter.RaiseDispute(ctx, signer, *b.RequestID, reason)
	if err != nil {
		metrics.TxSubmissionsTotal.WithLabelValues("raise_dispute", "error").Inc()
		// Roll the narrative row back; the ledger never saw the dispute.
		if rbErr := e.disputes.Resolve(ctx, d.ID, e.now()); rbErr != nil {
			e.logger.Error("dispute rollback failed", "dispute_id", d.ID, "error", rbErr)
		}
		return "", err
	}
	metrics.TxSubmissionsTotal.WithLabelValues("raise_dispute", "ok").Inc()

	if _, err := e.syncer.ApplyOptimistic(ctx, bookingID, booking.ActionDispute, txHash); err != nil {
		e.logger.Error("optimistic update after dispute failed", "booking_id", bookingID, "error", err)
	}
	e.notifier.Publish(bookingID, booking.Update{Kind: booking.UpdateDispute})
	e.reconcileLater(bookingID, txHash)
	return txHash, nil
}

func (e *Engine) requesterBooking(ctx context.Context, signer chain.Signer, bookingID string) (*booking.Booking, error) {
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	caller := booking.NormalizeAddr(signer.Address().Hex())
	switch caller {
	case b.RequesterAddr:
		return b, nil
	case b.ProviderAddr:
		return nil, ErrRequesterOnly
	default:
		return nil, ErrNotParticipant
	}
}

// reconcileLater waits for the given transaction and reconciles the
// booking from the ledger, detached from the caller's context.
func (e *Engine) reconcileLater(bookingID, txHash string) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.confirmTimeout)
		defer cancel()

		err := retry.Do(ctx, 5, 2*time.Second, func() error {
			_, err := e.syncer.Reconcile(ctx, bookingID)
			return err
		})
		if err != nil {
			metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
			e.logger.Warn("deferred reconcile failed", "booking_id", bookingID, "tx", txHash, "error", err)
			return
		}
		metrics.ReconciliationsTotal.WithLabelValues("ok").Inc()
	}()
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// GetBooking returns a booking, reconciling it against the ledger first
// so stale counterparty views self-heal on every load. A failed
// reconcile degrades to the last-known-good record.
func (e *Engine) GetBooking(ctx context.Context, bookingID string) (*booking.Booking, error) {
	b, err := e.syncer.Reconcile(ctx, bookingID)
	if err == nil {
		return b, nil
	}
	if errors.Is(err, booking.ErrNotFound) {
		return nil, err
	}
	e.logger.Warn("reconcile on view failed, serving cached state", "booking_id", bookingID, "error", err)
	return e.bookings.Get(ctx, bookingID)
}

// ListBookings returns one page of the bookings an address participates
// in, newest first, plus the cursor for the next page.
func (e *Engine) ListBookings(ctx context.Context, addr common.Address, cursor *pagination.Cursor, limit int) ([]*booking.Booking, string, error) {
	if limit <= 0 {
		limit = 50
	}
	items, err := e.bookings.ListByParticipant(ctx, booking.NormalizeAddr(addr.Hex()), cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	items, next, _ := pagination.ComputePage(items, limit, func(b *booking.Booking) (time.Time, string) {
		return b.CreatedAt, b.ID
	})
	return items, next, nil
}

// ResolveRequestID recovers the ledger request id for a payment tx.
func (e *Engine) ResolveRequestID(ctx context.Context, txHash string) (uint64, error) {
	return e.resolver.RequestID(ctx, txHash)
}

// ReadEscrowState reads the authoritative escrow record.
func (e *Engine) ReadEscrowState(ctx context.Context, requestID uint64) (chain.EscrowRecord, error) {
	return e.reader.ReadEscrow(ctx, requestID)
}

// Reconcile forces a reconciliation pass for one booking.
func (e *Engine) Reconcile(ctx context.Context, bookingID string) (*booking.Booking, error) {
	return e.syncer.Reconcile(ctx, bookingID)
}

// Subscribe registers an observer for a booking's update stream.
func (e *Engine) Subscribe(bookingID string) (<-chan booking.Update, func()) {
	return e.notifier.Subscribe(bookingID)
}

// WindowFor computes the action window for a booking from a fresh
// ledger read.
func (e *Engine) WindowFor(ctx context.Context, bookingID string) (booking.WindowStatus, error) {
	b, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return booking.WindowStatus{}, err
	}
	if b.RequestID == nil {
		return booking.WindowStatus{}, ErrNoLedgerLink
	}
	rec, err := e.reader.ReadEscrow(ctx, *b.RequestID)
	if err != nil {
		return booking.WindowStatus{}, err
	}
	return booking.Window(rec, e.now()), nil
}

// ListEvidence returns the evidence submitted for a booking.
func (e *Engine) ListEvidence(ctx context.Context, bookingID string) ([]*evidence.Evidence, error) {
	return e.evidence.ListByBooking(ctx, bookingID)
}

// ActiveDispute returns the active dispute for a booking, if any.
func (e *Engine) ActiveDispute(ctx context.Context, bookingID string) (*dispute.Dispute, error) {
	return e.disputes.GetActive(ctx, bookingID)
}
