// Package entitlement computes what a membership is currently worth: hours
// left, session countdowns, visit history visibility and booking eligibility.
// Every function is pure; callers pass the current time explicitly.
package entitlement

import (
	"strconv"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
)

const (
	TierLegacyMaker = "legacy-maker"
	TierLeader      = "leader"
	TierSupporter   = "supporter"
	TierWalkIn      = "walk-in"
)

// Remaining is the hours-left projection for a membership. Unlimited is a
// distinct state, not a large number; Hours is meaningful only when
// Unlimited is false.
type Remaining struct {
	Unlimited bool
	Hours     int
}

func (r Remaining) Display() string {
	if r.Unlimited {
		return "Unlimited"
	}
	if r.Hours <= 0 {
		return "Maxed Out"
	}
	return strconv.Itoa(r.Hours)
}

func assignedTotal(m model.Membership) int {
	total := 0
	for _, a := range m.AssignedDays {
		total += a.AssignedHours
	}
	return total
}

// HoursLeft returns the membership's remaining bookable hours, floored at
// zero. legacy-maker is always Unlimited regardless of assigned days.
func HoursLeft(m model.Membership) Remaining {
	if m.Tier == TierLegacyMaker {
		return Remaining{Unlimited: true}
	}
	left := m.InitialHours - assignedTotal(m)
	if left < 0 {
		left = 0
	}
	return Remaining{Hours: left}
}

// IsMaxedOut reports whether the membership can accept no further bookings.
func IsMaxedOut(m model.Membership) bool {
	if m.Tier == TierLegacyMaker {
		return false
	}
	return assignedTotal(m) >= m.InitialHours
}

// Entitled reports whether the membership counts at all right now: payment
// must be active and a walk-in pass must not be past its expiry. A live
// session does not imply payment; this check is always independent.
func Entitled(m model.Membership, now time.Time) bool {
	if m.PaymentStatus != model.PaymentStatusActive {
		return false
	}
	if m.Expiry != nil && now.After(*m.Expiry) {
		return false
	}
	return true
}
