// Package reconciler runs the background loop that keeps off-chain
// booking records converged with the ledger.
//
// Each pass does two things:
//  1. Backfill: bookings whose payment tx was broadcast but whose
//     ledger request id is still unknown get the id recovered from
//     the receipt.
//  2. Reconcile: bookings with a ledger link whose payment may still
//     change on-chain are re-read and re-derived.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/booking"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/chain"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/circuitbreaker"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/metrics"
)

const batchSize = 100

// rpcKey is the circuit breaker key for ledger RPC calls. A single key
// covers all calls since they share one endpoint.
const rpcKey = "ledger_rpc"

// Resolver recovers request ids from receipts.
type Resolver interface {
	RequestID(ctx context.Context, txHash string) (uint64, error)
}

// Worker is the periodic reconciliation loop.
type Worker struct {
	store    booking.Store
	syncer   *booking.Synchronizer
	resolver Resolver
	reader   booking.StateReader
	breaker  *circuitbreaker.Breaker
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
	now      func() time.Time
}

// New creates a reconciliation worker.
func New(store booking.Store, syncer *booking.Synchronizer, resolver Resolver, reader booking.StateReader, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		store:    store,
		syncer:   syncer,
		resolver: resolver,
		reader:   reader,
		breaker:  circuitbreaker.New(5, 2*time.Minute),
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// Running reports whether the loop is actively running.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start begins the reconciliation loop. Call in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.safePass(ctx)
		}
	}
}

// Stop signals the loop to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

func (w *Worker) safePass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in reconciliation pass", "panic", fmt.Sprint(r))
		}
	}()
	w.Pass(ctx)
}

// Pass runs one backfill-and-reconcile sweep. Exported so operators can
// trigger it on demand.
func (w *Worker) Pass(ctx context.Context) {
	if !w.breaker.Allow(rpcKey) {
		w.logger.Warn("skipping reconciliation pass, ledger RPC circuit open")
		return
	}
	w.backfillRequestIDs(ctx)
	w.reconcileUnsettled(ctx)
}

func (w *Worker) backfillRequestIDs(ctx context.Context) {
	pending, err := w.store.ListAwaitingRequestID(ctx, batchSize)
	if err != nil {
		w.logger.Warn("failed to list bookings awaiting request id", "error", err)
		return
	}

	for _, b := range pending {
		requestID, err := w.resolver.RequestID(ctx, b.TxHash)
		if err != nil {
			if errors.Is(err, chain.ErrNotYetConfirmed) {
				w.breaker.RecordSuccess(rpcKey) // the RPC answered, the tx just isn't mined
				continue
			}
			w.recordRPCOutcome(err)
			metrics.RequestIDBackfillsTotal.WithLabelValues("error").Inc()
			w.logger.Warn("request id backfill failed", "booking_id", b.ID, "tx", b.TxHash, "error", err)
			continue
		}
		w.breaker.RecordSuccess(rpcKey)

		if _, err := w.syncer.SetRequestID(ctx, b.ID, requestID); err != nil {
			metrics.RequestIDBackfillsTotal.WithLabelValues("error").Inc()
			w.logger.Error("linking backfilled request id failed", "booking_id", b.ID, "request_id", requestID, "error", err)
			continue
		}
		metrics.RequestIDBackfillsTotal.WithLabelValues("ok").Inc()
		w.logger.Info("backfilled request id", "booking_id", b.ID, "request_id", requestID)
	}
}

func (w *Worker) reconcileUnsettled(ctx context.Context) {
	unsettled, err := w.store.ListUnsettled(ctx, batchSize)
	if err != nil {
		w.logger.Warn("failed to list unsettled bookings", "error", err)
		return
	}

	overdue := 0
	for _, b := range unsettled {
		updated, err := w.syncer.Reconcile(ctx, b.ID)
		if err != nil {
			w.recordRPCOutcome(err)
			metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
			w.logger.Warn("reconciliation failed", "booking_id", b.ID, "error", err)
			continue
		}
		w.breaker.RecordSuccess(rpcKey)
		metrics.ReconciliationsTotal.WithLabelValues("ok").Inc()

		if w.releaseOverdue(ctx, updated) {
			overdue++
			w.logger.Warn("auto-release deadline passed with payment still escrowed",
				"booking_id", updated.ID, "request_id", *updated.RequestID)
		}
	}
	metrics.OverdueReleases.Set(float64(overdue))
}

// releaseOverdue reports whether the booking's work is done, its
// auto-release deadline has passed, and the payment release has still
// not landed on the ledger. The release itself is a ledger action; the
// worker only surfaces the lag.
func (w *Worker) releaseOverdue(ctx context.Context, b *booking.Booking) bool {
	if b == nil || b.RequestID == nil {
		return false
	}
	if b.Status != booking.StatusCompleted || b.PaymentStatus != booking.PaymentEscrowed {
		return false
	}
	rec, err := w.reader.ReadEscrow(ctx, *b.RequestID)
	if err != nil {
		return false
	}
	return !rec.PaymentReleased && w.now().After(rec.AutoReleaseAt)
}

// recordRPCOutcome feeds RPC-class failures into the breaker. Local
// errors (store writes, derivation conflicts) do not trip it.
func (w *Worker) recordRPCOutcome(err error) {
	if errors.Is(err, chain.ErrRPCConnection) || errors.Is(err, chain.ErrStateRead) {
		w.breaker.RecordFailure(rpcKey)
	}
}
