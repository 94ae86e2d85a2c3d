package entitlement

import (
	"errors"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
)

var (
	ErrCapacityExceeded = errors.New("membership is maxed out")
	ErrInvalidDate      = errors.New("booking date is in the past")
	ErrInvalidHours     = errors.New("booking hours must be at least 1")
	ErrStaleState       = errors.New("membership changed since last fetch")
)

// DateOnly truncates t to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateBooking runs the local preconditions for booking hours against a
// day. The server re-runs the same checks inside its transaction; a clean
// pass here only saves the round trip, it does not authorize anything.
func ValidateBooking(m model.Membership, day time.Time, hours int, now time.Time) error {
	if hours < 1 {
		return ErrInvalidHours
	}
	if DateOnly(day).Before(DateOnly(now)) {
		return ErrInvalidDate
	}
	if m.Tier == TierLegacyMaker {
		return nil
	}
	if IsMaxedOut(m) {
		return ErrCapacityExceeded
	}
	if left := HoursLeft(m); hours > left.Hours {
		return ErrCapacityExceeded
	}
	return nil
}

// AssignHours merges a booking into the assigned-day set: booking a day that
// already has hours accumulates into the existing entry, it never creates a
// duplicate row for the same day.
func AssignHours(days []model.AssignedDay, day time.Time, hours int) []model.AssignedDay {
	day = DateOnly(day)
	for i := range days {
		if DateOnly(days[i].Day).Equal(day) {
			days[i].AssignedHours += hours
			return days
		}
	}
	return append(days, model.AssignedDay{Day: day, AssignedHours: hours})
}

// RemoveDay drops the whole entry for the given day. Removal is day-level;
// there is no partial decrement.
func RemoveDay(days []model.AssignedDay, day time.Time) []model.AssignedDay {
	day = DateOnly(day)
	out := make([]model.AssignedDay, 0, len(days))
	for _, d := range days {
		if !DateOnly(d.Day).Equal(day) {
			out = append(out, d)
		}
	}
	return out
}
