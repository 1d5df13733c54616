package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/chain"
)

type stubReader struct {
	mu  sync.Mutex
	rec chain.EscrowRecord
	err error
}

func (r *stubReader) ReadEscrow(ctx context.Context, requestID uint64) (chain.EscrowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return chain.EscrowRecord{}, r.err
	}
	rec := r.rec
	rec.RequestID = requestID
	return rec, nil
}

func newTestBooking(t *testing.T, store Store) *Booking {
	t.Helper()
	now := time.Now().UTC()
	b := &Booking{
		ID:            NewID(),
		RequesterAddr: "0xaaa",
		ProviderAddr:  "0xbbb",
		Requirements:  "design a logo",
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		MethodSymbol:  "USDC",
		Amount:        "100",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.Create(context.Background(), b); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return b
}

func TestDerive_PureFunctionOfFlags(t *testing.T) {
	tests := []struct {
		name        string
		rec         chain.EscrowRecord
		wantStatus  Status
		wantPayment PaymentStatus
	}{
		{"fresh escrow", chain.EscrowRecord{}, StatusInProgress, PaymentEscrowed},
		{"work submitted", chain.EscrowRecord{Completed: true}, StatusCompleted, PaymentEscrowed},
		{"released", chain.EscrowRecord{Completed: true, PaymentReleased: true}, StatusCompleted, PaymentPaid},
		{"disputed", chain.EscrowRecord{Completed: true, Disputed: true}, StatusDisputed, PaymentEscrowed},
		{"dispute resolved for provider", chain.EscrowRecord{Completed: true, Disputed: true, PaymentReleased: true}, StatusCompleted, PaymentPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payment := Derive(tt.rec)
			if status != tt.wantStatus || payment != tt.wantPayment {
				t.Errorf("Derive(%+v) = (%s, %s), want (%s, %s)",
					tt.rec, status, payment, tt.wantStatus, tt.wantPayment)
			}
			// Same input, same output.
			again, againPay := Derive(tt.rec)
			if again != status || againPay != payment {
				t.Error("Derive is not deterministic")
			}
		})
	}
}

func TestApplyOptimistic_PayRecordsTxHash(t *testing.T) {
	store := NewMemoryStore()
	syncr := NewSynchronizer(store, &stubReader{}, NewNotifier())
	b := newTestBooking(t, store)

	got, err := syncr.ApplyOptimistic(context.Background(), b.ID, ActionPay, "0xAA")
	if err != nil {
		t.Fatalf("ApplyOptimistic: %v", err)
	}
	if got.PaymentStatus != PaymentEscrowed {
		t.Errorf("payment status = %s, want escrowed", got.PaymentStatus)
	}
	if got.TxHash != "0xAA" {
		t.Errorf("tx hash = %q, want 0xAA", got.TxHash)
	}
	if got.Status != StatusPending {
		t.Errorf("optimistic pay must not advance status, got %s", got.Status)
	}
}

func TestApplyReconciled_CompletedEscrow(t *testing.T) {
	store := NewMemoryStore()
	notifier := NewNotifier()
	syncr := NewSynchronizer(store, &stubReader{}, notifier)
	b := newTestBooking(t, store)

	rec := chain.EscrowRecord{
		RequestID:     42,
		Completed:     true,
		AutoReleaseAt: time.Now().Add(7 * 24 * time.Hour),
	}
	got, err := syncr.ApplyReconciled(context.Background(), b.ID, rec)
	if err != nil {
		t.Fatalf("ApplyReconciled: %v", err)
	}
	if got.Status != StatusCompleted || got.PaymentStatus != PaymentEscrowed {
		t.Errorf("got (%s, %s), want (completed, escrowed)", got.Status, got.PaymentStatus)
	}
	if got.RequestID == nil || *got.RequestID != 42 {
		t.Error("reconciliation should link the request id")
	}

	w := Window(rec, time.Now())
	if !w.DisputeEligible {
		t.Error("completed unreleased escrow inside the window must be dispute eligible")
	}
	if w.Remaining < 6*24*time.Hour {
		t.Errorf("remaining = %v, want about 7 days", w.Remaining)
	}
}

func TestApplyReconciled_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	notifier := NewNotifier()
	syncr := NewSynchronizer(store, &stubReader{}, notifier)
	b := newTestBooking(t, store)

	updates, cancel := notifier.Subscribe(b.ID)
	defer cancel()

	rec := chain.EscrowRecord{RequestID: 7, Completed: true}
	first, err := syncr.ApplyReconciled(context.Background(), b.ID, rec)
	if err != nil {
		t.Fatal(err)
	}
	second, err := syncr.ApplyReconciled(context.Background(), b.ID, rec)
	if err != nil {
		t.Fatal(err)
	}

	if first.Status != second.Status || first.PaymentStatus != second.PaymentStatus {
		t.Error("repeated reconciliation diverged")
	}

	// Exactly one notification: the second application is a detected no-op.
	if got := len(updates); got != 1 {
		t.Errorf("notifications = %d, want 1", got)
	}
}

func TestApplyReconciled_StaleRecordDoesNotRegress(t *testing.T) {
	store := NewMemoryStore()
	syncr := NewSynchronizer(store, &stubReader{}, NewNotifier())
	b := newTestBooking(t, store)

	released := chain.EscrowRecord{RequestID: 3, Completed: true, PaymentReleased: true}
	if _, err := syncr.ApplyReconciled(context.Background(), b.ID, released); err != nil {
		t.Fatal(err)
	}

	// A confirmation observed late carries an older view of the flags.
	stale := chain.EscrowRecord{RequestID: 3, Completed: true}
	got, err := syncr.ApplyReconciled(context.Background(), b.ID, stale)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != PaymentPaid {
		t.Errorf("stale record regressed payment status to %s", got.PaymentStatus)
	}
}

func TestReconcile_WinsOverOptimisticRelease(t *testing.T) {
	store := NewMemoryStore()
	reader := &stubReader{rec: chain.EscrowRecord{Completed: true}}
	syncr := NewSynchronizer(store, reader, NewNotifier())
	b := newTestBooking(t, store)

	if _, err := syncr.SetRequestID(context.Background(), b.ID, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := syncr.Reconcile(context.Background(), b.ID); err != nil {
		t.Fatal(err)
	}

	// A release broadcast is accepted but reverts on the ledger: the
	// escrow record never flips paymentReleased.
	if _, err := syncr.ApplyOptimistic(context.Background(), b.ID, ActionRelease, "0xdead"); err != nil {
		t.Fatal(err)
	}

	got, err := syncr.Reconcile(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaymentStatus != PaymentEscrowed {
		t.Errorf("reconciliation did not replace the optimistic release: payment is %s, ledger says escrowed", got.PaymentStatus)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestApplyReconciled_RevertedCancelDoesNotStick(t *testing.T) {
	store := NewMemoryStore()
	syncr := NewSynchronizer(store, &stubReader{}, NewNotifier())
	b := newTestBooking(t, store)

	if _, err := syncr.ApplyReconciled(context.Background(), b.ID, chain.EscrowRecord{RequestID: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := syncr.ApplyOptimistic(context.Background(), b.ID, ActionCancel, "0xdead"); err != nil {
		t.Fatal(err)
	}

	// The cancel reverted; the escrow survived and the work completed.
	got, err := syncr.ApplyReconciled(context.Background(), b.ID, chain.EscrowRecord{RequestID: 5, Completed: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.PaymentStatus != PaymentEscrowed {
		t.Errorf("optimistic cancel stuck: (%s, %s), want (completed, escrowed)", got.Status, got.PaymentStatus)
	}
}

func TestConfirmCancellation_FinalizesRefund(t *testing.T) {
	store := NewMemoryStore()
	syncr := NewSynchronizer(store, &stubReader{}, NewNotifier())
	b := newTestBooking(t, store)

	if _, err := syncr.ApplyReconciled(context.Background(), b.ID, chain.EscrowRecord{RequestID: 5}); err != nil {
		t.Fatal(err)
	}
	got, err := syncr.ConfirmCancellation(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled || got.PaymentStatus != PaymentRefunded {
		t.Fatalf("got (%s, %s), want (cancelled, refunded)", got.Status, got.PaymentStatus)
	}
	if !got.IsTerminal() {
		t.Error("confirmed refund must be terminal")
	}

	// The contract removed the entry; whatever a later read returns for
	// the id must not resurrect the booking.
	got, err = syncr.ApplyReconciled(context.Background(), b.ID, chain.EscrowRecord{RequestID: 5, Completed: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled || got.PaymentStatus != PaymentRefunded {
		t.Errorf("reconciliation overwrote a confirmed refund: (%s, %s)", got.Status, got.PaymentStatus)
	}
}

func TestConfirmCancellation_ConflictsWithReconciledRelease(t *testing.T) {
	store := NewMemoryStore()
	syncr := NewSynchronizer(store, &stubReader{}, NewNotifier())
	b := newTestBooking(t, store)

	rec := chain.EscrowRecord{RequestID: 5, Completed: true, PaymentReleased: true}
	if _, err := syncr.ApplyReconciled(context.Background(), b.ID, rec); err != nil {
		t.Fatal(err)
	}
	_, err := syncr.ConfirmCancellation(context.Background(), b.ID)
	if !errors.Is(err, ErrReconcileConflict) {
		t.Fatalf("refund after a reconciled release must conflict, got %v", err)
	}
}

func TestApplyReconciled_RequestIDMismatch(t *testing.T) {
	store := NewMemoryStore()
	syncr := NewSynchronizer(store, &stubReader{}, NewNotifier())
	b := newTestBooking(t, store)

	if _, err := syncr.SetRequestID(context.Background(), b.ID, 10); err != nil {
		t.Fatal(err)
	}
	_, err := syncr.ApplyReconciled(context.Background(), b.ID, chain.EscrowRecord{RequestID: 11})
	if !errors.Is(err, ErrReconcileConflict) {
		t.Fatalf("want ErrReconcileConflict, got %v", err)
	}
}

func TestSetRequestID_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	syncr := NewSynchronizer(store, &stubReader{}, NewNotifier())
	b := newTestBooking(t, store)

	if _, err := syncr.SetRequestID(context.Background(), b.ID, 42); err != nil {
		t.Fatal(err)
	}
	if _, err := syncr.SetRequestID(context.Background(), b.ID, 42); err != nil {
		t.Fatalf("repeated identical link should be a no-op, got %v", err)
	}
	if _, err := syncr.SetRequestID(context.Background(), b.ID, 43); !errors.Is(err, ErrReconcileConflict) {
		t.Fatalf("conflicting link must fail, got %v", err)
	}
}

func TestReconcile_ReadFailureKeepsLastKnownGood(t *testing.T) {
	store := NewMemoryStore()
	reader := &stubReader{rec: chain.EscrowRecord{Completed: true}}
	syncr := NewSynchronizer(store, reader, NewNotifier())
	b := newTestBooking(t, store)

	if _, err := syncr.SetRequestID(context.Background(), b.ID, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := syncr.Reconcile(context.Background(), b.ID); err != nil {
		t.Fatal(err)
	}

	reader.mu.Lock()
	reader.err = chain.ErrStateRead
	reader.mu.Unlock()

	_, err := syncr.Reconcile(context.Background(), b.ID)
	if !errors.Is(err, chain.ErrStateRead) {
		t.Fatalf("want ErrStateRead surfaced, got %v", err)
	}

	got, err := store.Get(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("failed read must not disturb stored state, got %s", got.Status)
	}
}

func TestConcurrentReconciliationsConverge(t *testing.T) {
	store := NewMemoryStore()
	syncr := NewSynchronizer(store, &stubReader{}, NewNotifier())
	b := newTestBooking(t, store)

	rec := chain.EscrowRecord{RequestID: 9, Completed: true, PaymentReleased: true}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = syncr.ApplyReconciled(context.Background(), b.ID, rec)
		}()
	}
	wg.Wait()

	got, err := store.Get(context.Background(), b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted || got.PaymentStatus != PaymentPaid {
		t.Errorf("racing reconciliations diverged: (%s, %s)", got.Status, got.PaymentStatus)
	}
}
