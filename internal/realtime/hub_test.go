package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/booking"
)

func testHub() (*Hub, *booking.Notifier) {
	n := booking.NewNotifier()
	return NewHub(n, slog.New(slog.DiscardHandler)), n
}

func testClient(h *Hub) *Client {
	return &Client{
		hub:     h,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
		cancels: make(map[string]func()),
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h, _ := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalUpdates"].(int64) != 0 {
		t.Errorf("Expected 0 total updates, got %v", stats["totalUpdates"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h, _ := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := testClient(h)

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestClient_SubscriptionDeliversUpdate(t *testing.T) {
	h, n := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := testClient(h)
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	client.subscribe("bkg_1")
	time.Sleep(50 * time.Millisecond)

	n.Publish("bkg_1", booking.Update{
		Kind:    booking.UpdateBooking,
		Booking: &booking.Booking{ID: "bkg_1", Status: booking.StatusCompleted},
	})

	select {
	case msg := <-client.send:
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("decoding envelope: %v", err)
		}
		if env.BookingID != "bkg_1" {
			t.Errorf("Expected bookingId bkg_1, got %s", env.BookingID)
		}
		if env.Kind != booking.UpdateBooking {
			t.Errorf("Expected kind %s, got %s", booking.UpdateBooking, env.Kind)
		}
		if env.Booking == nil || env.Booking.Status != booking.StatusCompleted {
			t.Error("Expected embedded booking with completed status")
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for update")
	}
}

func TestClient_OnlySubscribedBookings(t *testing.T) {
	h, n := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := testClient(h)
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	client.subscribe("bkg_1")
	time.Sleep(50 * time.Millisecond)

	// An update on a different booking must not reach this client.
	n.Publish("bkg_other", booking.Update{Kind: booking.UpdateBooking})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive updates for other bookings")
	default:
	}

	n.Publish("bkg_1", booking.Update{Kind: booking.UpdateEvidence})

	select {
	case msg := <-client.send:
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("decoding envelope: %v", err)
		}
		if env.Kind != booking.UpdateEvidence {
			t.Errorf("Expected evidence update, got %s", env.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Client should receive updates for its booking")
	}
}

func TestClient_Unsubscribe(t *testing.T) {
	h, n := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := testClient(h)
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	client.subscribe("bkg_1")
	time.Sleep(50 * time.Millisecond)
	client.unsubscribe("bkg_1")
	time.Sleep(50 * time.Millisecond)

	n.Publish("bkg_1", booking.Update{Kind: booking.UpdateBooking})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Unsubscribed client should not receive updates")
	default:
	}
	if n.SubscriberCount("bkg_1") != 0 {
		t.Errorf("Expected 0 notifier subscribers, got %d", n.SubscriberCount("bkg_1"))
	}
}

func TestHub_UnregisterReleasesNotifierSubscriptions(t *testing.T) {
	h, n := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := testClient(h)
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	client.subscribe("bkg_1")
	client.subscribe("bkg_2")
	time.Sleep(50 * time.Millisecond)

	h.unregister <- client
	time.Sleep(100 * time.Millisecond)

	if n.SubscriberCount("bkg_1") != 0 || n.SubscriberCount("bkg_2") != 0 {
		t.Error("Expected all notifier subscriptions released on unregister")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h, _ := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}
