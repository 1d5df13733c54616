package booking

import (
	"fmt"
	"time"

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/chain"
)

// WindowStatus reports the time-bounded actions currently legal for an
// escrow record.
type WindowStatus struct {
	Remaining       time.Duration `json:"remainingSeconds"`
	Display         string        `json:"remaining"`
	DisputeEligible bool          `json:"disputeEligible"`
}

// Window derives the auto-release countdown and dispute eligibility from
// an escrow record at a given instant. Pure and allocation-light so it
// can run on every poll tick.
func Window(rec chain.EscrowRecord, now time.Time) WindowStatus {
	remaining := rec.AutoReleaseAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return WindowStatus{
		Remaining: remaining,
		Display:   FormatRemaining(remaining),
		DisputeEligible: rec.Completed &&
			!rec.PaymentReleased &&
			!rec.Disputed &&
			now.Before(rec.AutoReleaseAt),
	}
}

// FormatRemaining renders a duration at human scale: "6d 23h", "4h 10m",
// "12m", "45s", or "expired".
func FormatRemaining(d time.Duration) string {
	switch {
	case d <= 0:
		return "expired"
	case d >= 24*time.Hour:
		days := d / (24 * time.Hour)
		hours := (d % (24 * time.Hour)) / time.Hour
		return fmt.Sprintf("%dd %dh", days, hours)
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", d/time.Hour, (d%time.Hour)/time.Minute)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
