package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/booking"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/chain"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/metrics"
)

type stubReader struct {
	mu      sync.Mutex
	records map[uint64]chain.EscrowRecord
	err     error
}

func (s *stubReader) ReadEscrow(ctx context.Context, requestID uint64) (chain.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return chain.EscrowRecord{}, s.err
	}
	rec, ok := s.records[requestID]
	if !ok {
		return chain.EscrowRecord{}, chain.ErrStateRead
	}
	return rec, nil
}

type stubResolver struct {
	mu    sync.Mutex
	ids   map[string]uint64
	err   error
	calls int
}

func (s *stubResolver) RequestID(ctx context.Context, txHash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	id, ok := s.ids[txHash]
	if !ok {
		return 0, chain.ErrNotYetConfirmed
	}
	return id, nil
}

func (s *stubResolver) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func seedBooking(t *testing.T, store booking.Store, id, txHash string, requestID *uint64) *booking.Booking {
	t.Helper()
	now := time.Now().UTC()
	b := &booking.Booking{
		ID:            id,
		RequesterAddr: "0xaaaa",
		ProviderAddr:  "0xbbbb",
		Requirements:  "design a logo",
		Status:        booking.StatusPending,
		PaymentStatus: booking.PaymentEscrowed,
		TxHash:        txHash,
		RequestID:     requestID,
		MethodSymbol:  "USDC",
		Amount:        "25.00",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, store.Create(context.Background(), b))
	return b
}

func TestPass_BackfillsRequestID(t *testing.T) {
	store := booking.NewMemoryStore()
	reader := &stubReader{records: map[uint64]chain.EscrowRecord{
		7: {RequestID: 7, Completed: false},
	}}
	notifier := booking.NewNotifier()
	syncer := booking.NewSynchronizer(store, reader, notifier)
	resolver := &stubResolver{ids: map[string]uint64{"0xtx1": 7}}

	seedBooking(t, store, "bkg_1", "0xtx1", nil)

	w := New(store, syncer, resolver, reader, time.Minute, testLogger())
	w.Pass(context.Background())

	b, err := store.Get(context.Background(), "bkg_1")
	require.NoError(t, err)
	require.NotNil(t, b.RequestID)
	assert.Equal(t, uint64(7), *b.RequestID)
}

func TestPass_SkipsUnconfirmedPayments(t *testing.T) {
	store := booking.NewMemoryStore()
	reader := &stubReader{records: map[uint64]chain.EscrowRecord{}}
	syncer := booking.NewSynchronizer(store, reader, booking.NewNotifier())
	resolver := &stubResolver{ids: map[string]uint64{}} // nothing confirmed

	seedBooking(t, store, "bkg_1", "0xpending", nil)

	w := New(store, syncer, resolver, reader, time.Minute, testLogger())
	w.Pass(context.Background())

	b, err := store.Get(context.Background(), "bkg_1")
	require.NoError(t, err)
	assert.Nil(t, b.RequestID, "unconfirmed payment must stay unlinked")
}

func TestPass_ReconcilesUnsettledBookings(t *testing.T) {
	store := booking.NewMemoryStore()
	reader := &stubReader{records: map[uint64]chain.EscrowRecord{
		9: {RequestID: 9, Completed: true, PaymentReleased: true, AutoReleaseAt: time.Now().Add(time.Hour)},
	}}
	syncer := booking.NewSynchronizer(store, reader, booking.NewNotifier())
	resolver := &stubResolver{}

	id := uint64(9)
	seedBooking(t, store, "bkg_1", "0xtx9", &id)

	w := New(store, syncer, resolver, reader, time.Minute, testLogger())
	w.Pass(context.Background())

	b, err := store.Get(context.Background(), "bkg_1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, b.Status)
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
}

func TestPass_ReadFailureLeavesBookingUntouched(t *testing.T) {
	store := booking.NewMemoryStore()
	reader := &stubReader{err: chain.ErrRPCConnection}
	syncer := booking.NewSynchronizer(store, reader, booking.NewNotifier())
	resolver := &stubResolver{}

	id := uint64(3)
	seedBooking(t, store, "bkg_1", "0xtx3", &id)

	w := New(store, syncer, resolver, reader, time.Minute, testLogger())
	w.Pass(context.Background())

	b, err := store.Get(context.Background(), "bkg_1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Equal(t, booking.PaymentEscrowed, b.PaymentStatus)
}

func TestPass_FlagsOverdueRelease(t *testing.T) {
	store := booking.NewMemoryStore()
	reader := &stubReader{records: map[uint64]chain.EscrowRecord{
		5: {RequestID: 5, Completed: true, AutoReleaseAt: time.Now().Add(-time.Hour)},
	}}
	syncer := booking.NewSynchronizer(store, reader, booking.NewNotifier())

	id := uint64(5)
	seedBooking(t, store, "bkg_1", "0xtx5", &id)

	w := New(store, syncer, &stubResolver{}, reader, time.Minute, testLogger())
	w.Pass(context.Background())

	var m dto.Metric
	require.NoError(t, metrics.OverdueReleases.Write(&m))
	assert.Equal(t, 1.0, m.GetGauge().GetValue())

	// Once the release lands, the flag clears.
	reader.mu.Lock()
	reader.records[5] = chain.EscrowRecord{RequestID: 5, Completed: true, PaymentReleased: true, AutoReleaseAt: time.Now().Add(-time.Hour)}
	reader.mu.Unlock()
	w.Pass(context.Background())

	require.NoError(t, metrics.OverdueReleases.Write(&m))
	assert.Equal(t, 0.0, m.GetGauge().GetValue())
}

func TestPass_OpenCircuitSkipsLedgerCalls(t *testing.T) {
	store := booking.NewMemoryStore()
	reader := &stubReader{records: map[uint64]chain.EscrowRecord{}}
	syncer := booking.NewSynchronizer(store, reader, booking.NewNotifier())
	resolver := &stubResolver{err: chain.ErrRPCConnection}

	seedBooking(t, store, "bkg_1", "0xtx1", nil)

	w := New(store, syncer, resolver, reader, time.Minute, testLogger())

	// Each failed pass records one RPC failure; the fifth trips the circuit.
	for i := 0; i < 5; i++ {
		w.Pass(context.Background())
	}
	assert.Equal(t, 5, resolver.callCount())

	w.Pass(context.Background())
	assert.Equal(t, 5, resolver.callCount(), "open circuit must not hit the ledger")
}

func TestStartStop(t *testing.T) {
	store := booking.NewMemoryStore()
	reader := &stubReader{records: map[uint64]chain.EscrowRecord{}}
	syncer := booking.NewSynchronizer(store, reader, booking.NewNotifier())

	w := New(store, syncer, &stubResolver{}, reader, 10*time.Millisecond, testLogger())

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	// Give the loop a moment to come up, then stop it.
	deadline := time.After(time.Second)
	for !w.Running() {
		select {
		case <-deadline:
			t.Fatal("worker never started")
		case <-time.After(time.Millisecond):
		}
	}
	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.False(t, w.Running())
}
