package dispute

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreate_SingleActivePerBooking(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &Dispute{
		ID:        NewID(),
		BookingID: "bkg_1",
		RaisedBy:  "0xaaa",
		Reason:    "work not delivered",
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second := &Dispute{
		ID:        NewID(),
		BookingID: "bkg_1",
		RaisedBy:  "0xaaa",
		Reason:    "still not delivered",
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := store.Create(ctx, second); !errors.Is(err, ErrActiveExists) {
		t.Fatalf("want ErrActiveExists, got %v", err)
	}

	// A different booking is unaffected.
	other := &Dispute{ID: NewID(), BookingID: "bkg_2", RaisedBy: "0xbbb", Reason: "bad quality", Active: true, CreatedAt: time.Now()}
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("Create for other booking: %v", err)
	}
}

func TestCreate_AfterResolveAllowed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	d := &Dispute{ID: NewID(), BookingID: "bkg_1", RaisedBy: "0xaaa", Reason: "late", Active: true, CreatedAt: time.Now()}
	if err := store.Create(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := store.Resolve(ctx, d.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetActive(ctx, "bkg_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("resolved dispute should not be active, got %v", err)
	}

	again := &Dispute{ID: NewID(), BookingID: "bkg_1", RaisedBy: "0xaaa", Reason: "regression", Active: true, CreatedAt: time.Now()}
	if err := store.Create(ctx, again); err != nil {
		t.Fatalf("a new dispute after resolution should be allowed: %v", err)
	}
}

func TestCreate_EmptyReasonRejected(t *testing.T) {
	store := NewMemoryStore()
	d := &Dispute{ID: NewID(), BookingID: "bkg_1", RaisedBy: "0xaaa", Active: true, CreatedAt: time.Now()}
	if err := store.Create(context.Background(), d); !errors.Is(err, ErrEmptyReason) {
		t.Fatalf("want ErrEmptyReason, got %v", err)
	}
}
