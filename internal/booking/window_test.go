package booking

import (
	"testing"
	"time"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/chain"
)

func TestWindow_DisputeEligibility(t *testing.T) {
	now := time.Unix(1_900_000_000, 0)
	future := now.Add(48 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		rec  chain.EscrowRecord
		want bool
	}{
		{"eligible", chain.EscrowRecord{Completed: true, AutoReleaseAt: future}, true},
		{"not completed", chain.EscrowRecord{AutoReleaseAt: future}, false},
		{"already released", chain.EscrowRecord{Completed: true, PaymentReleased: true, AutoReleaseAt: future}, false},
		{"already disputed", chain.EscrowRecord{Completed: true, Disputed: true, AutoReleaseAt: future}, false},
		{"deadline passed", chain.EscrowRecord{Completed: true, AutoReleaseAt: past}, false},
		{"exactly at deadline", chain.EscrowRecord{Completed: true, AutoReleaseAt: now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Window(tt.rec, now).DisputeEligible; got != tt.want {
				t.Errorf("DisputeEligible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindow_RemainingClampedAtZero(t *testing.T) {
	now := time.Now()
	w := Window(chain.EscrowRecord{AutoReleaseAt: now.Add(-time.Hour)}, now)
	if w.Remaining != 0 {
		t.Errorf("remaining = %v, want 0", w.Remaining)
	}
	if w.Display != "expired" {
		t.Errorf("display = %q, want expired", w.Display)
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{7 * 24 * time.Hour, "7d 0h"},
		{26 * time.Hour, "1d 2h"},
		{4*time.Hour + 10*time.Minute, "4h 10m"},
		{12 * time.Minute, "12m"},
		{45 * time.Second, "45s"},
		{0, "expired"},
	}

	for _, tt := range tests {
		if got := FormatRemaining(tt.d); got != tt.want {
			t.Errorf("FormatRemaining(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
