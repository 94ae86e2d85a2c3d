package entitlement

import (
	"fmt"
	"time"
)

// badgeWindow is the coarse "recently checked in" threshold for the session
// badge. It is deliberately independent from the per-membership hour cap
// used by the countdown.
const badgeWindow = time.Hour

type SessionState string

const (
	SessionActive    SessionState = "active"
	SessionExpired   SessionState = "expired"
	SessionNoSession SessionState = "none"
)

// Countdown is the live time-left projection for a checked-in session.
// Exactly one of Unlimited/Expired may be set; otherwise Display holds a
// zero-padded MM:SS string. Minutes wrap at 60: a 90-minute remainder shows
// as 30:00. The hour component is intentionally dropped to match the
// long-standing display contract.
type Countdown struct {
	Unlimited bool
	Expired   bool
	Display   string
}

// RemainingSessionTime computes the countdown for a session that started at
// start under a cap of maxHours. A nil maxHours means no cap.
func RemainingSessionTime(start time.Time, maxHours *int, now time.Time) Countdown {
	if maxHours == nil {
		return Countdown{Unlimited: true}
	}
	total := time.Duration(*maxHours) * time.Hour
	remaining := total - now.Sub(start)
	if remaining <= 0 {
		return Countdown{Expired: true}
	}
	mins := int(remaining.Minutes()) % 60
	secs := int(remaining.Seconds()) % 60
	return Countdown{Display: fmt.Sprintf("%02d:%02d", mins, secs)}
}

// SessionStatus classifies a session for the badge. Expired strictly after
// one hour, regardless of the membership's own cap.
func SessionStatus(start *time.Time, now time.Time) SessionState {
	if start == nil {
		return SessionNoSession
	}
	if now.Sub(*start) > badgeWindow {
		return SessionExpired
	}
	return SessionActive
}
