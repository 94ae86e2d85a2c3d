package entitlement

import (
	"errors"
	"testing"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestHoursLeftFloorsAtZero(t *testing.T) {
	m := model.Membership{
		Tier:         TierLeader,
		InitialHours: 5,
		AssignedDays: []model.AssignedDay{
			{Day: day("2026-09-01"), AssignedHours: 4},
			{Day: day("2026-09-02"), AssignedHours: 3},
		},
	}
	left := HoursLeft(m)
	if left.Unlimited {
		t.Fatal("leader tier must not be unlimited")
	}
	if left.Hours != 0 {
		t.Fatalf("hours left = %d, want 0 (floored)", left.Hours)
	}
	if left.Display() != "Maxed Out" {
		t.Fatalf("display = %q, want Maxed Out", left.Display())
	}

	m.AssignedDays = m.AssignedDays[:1]
	if got := HoursLeft(m).Hours; got != 1 {
		t.Fatalf("hours left = %d, want 1", got)
	}
}

func TestLegacyMakerAlwaysUnlimited(t *testing.T) {
	m := model.Membership{Tier: TierLegacyMaker, InitialHours: 0}
	for i := 0; i < 50; i++ {
		m.AssignedDays = AssignHours(m.AssignedDays, day("2026-09-01").AddDate(0, 0, i), 24)
		if !HoursLeft(m).Unlimited {
			t.Fatalf("after %d assignments: want Unlimited", i+1)
		}
		if IsMaxedOut(m) {
			t.Fatalf("after %d assignments: legacy-maker reported maxed out", i+1)
		}
	}
	if HoursLeft(m).Display() != "Unlimited" {
		t.Fatalf("display = %q, want Unlimited", HoursLeft(m).Display())
	}
}

func TestHoursLeftIsPure(t *testing.T) {
	m := model.Membership{
		Tier:         TierSupporter,
		InitialHours: 8,
		AssignedDays: []model.AssignedDay{{Day: day("2026-09-03"), AssignedHours: 2}},
	}
	a, b := HoursLeft(m), HoursLeft(m)
	if a != b {
		t.Fatalf("HoursLeft not stable: %+v vs %+v", a, b)
	}
	if IsMaxedOut(m) != IsMaxedOut(m) {
		t.Fatal("IsMaxedOut not stable")
	}
}

func TestValidateBookingRejectsMaxedOut(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	m := model.Membership{
		Tier:         TierLeader,
		InitialHours: 5,
		AssignedDays: []model.AssignedDay{{Day: day("2026-09-01"), AssignedHours: 5}},
	}
	before := len(m.AssignedDays)

	err := ValidateBooking(m, day("2026-09-02"), 1, now)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	if len(m.AssignedDays) != before {
		t.Fatal("assigned days mutated by a rejected booking")
	}
}

func TestValidateBookingRejectsPastDateAndBadHours(t *testing.T) {
	now := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)
	m := model.Membership{Tier: TierSupporter, InitialHours: 8}

	if err := ValidateBooking(m, day("2026-08-28"), 1, now); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("past day: err = %v, want ErrInvalidDate", err)
	}
	// Same calendar day is not "past" even late in the day.
	if err := ValidateBooking(m, day("2026-08-29"), 1, now); err != nil {
		t.Fatalf("same day: err = %v, want nil", err)
	}
	if err := ValidateBooking(m, day("2026-08-30"), 0, now); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("zero hours: err = %v, want ErrInvalidHours", err)
	}
	if err := ValidateBooking(m, day("2026-08-30"), 9, now); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("over-capacity hours: err = %v, want ErrCapacityExceeded", err)
	}
}

func TestAssignHoursAccumulatesSameDay(t *testing.T) {
	days := AssignHours(nil, day("2026-09-01"), 2)
	days = AssignHours(days, day("2026-09-01"), 3)
	if len(days) != 1 {
		t.Fatalf("len = %d, want 1 (same-day bookings must merge)", len(days))
	}
	if days[0].AssignedHours != 5 {
		t.Fatalf("assigned hours = %d, want 5", days[0].AssignedHours)
	}

	days = AssignHours(days, day("2026-09-02"), 1)
	if len(days) != 2 {
		t.Fatalf("len = %d, want 2", len(days))
	}
}

func TestRemoveDayDropsWholeEntry(t *testing.T) {
	days := []model.AssignedDay{
		{Day: day("2026-09-01"), AssignedHours: 4},
		{Day: day("2026-09-02"), AssignedHours: 2},
	}
	days = RemoveDay(days, day("2026-09-01"))
	if len(days) != 1 || !days[0].Day.Equal(day("2026-09-02")) {
		t.Fatalf("got %+v, want only 2026-09-02 left", days)
	}
}

func TestRemainingSessionTime(t *testing.T) {
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	two := 2

	cd := RemainingSessionTime(start, nil, start.Add(30*time.Minute))
	if !cd.Unlimited {
		t.Fatal("nil cap: want Unlimited")
	}

	// Exactly at the cap boundary the session is expired.
	cd = RemainingSessionTime(start, &two, start.Add(2*time.Hour))
	if !cd.Expired {
		t.Fatal("at cap: want Expired")
	}
	cd = RemainingSessionTime(start, &two, start.Add(3*time.Hour))
	if !cd.Expired {
		t.Fatal("past cap: want Expired")
	}

	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{elapsed: 1*time.Hour + 45*time.Minute, want: "15:00"},
		{elapsed: 1*time.Hour + 59*time.Minute + 59*time.Second, want: "00:01"},
		// 90 minutes remain; the hour component wraps at 60.
		{elapsed: 30 * time.Minute, want: "30:00"},
		{elapsed: 1*time.Hour + 44*time.Minute + 30*time.Second, want: "15:30"},
	}
	for _, tc := range cases {
		cd = RemainingSessionTime(start, &two, start.Add(tc.elapsed))
		if cd.Unlimited || cd.Expired {
			t.Fatalf("elapsed %v: unexpected terminal state %+v", tc.elapsed, cd)
		}
		if cd.Display != tc.want {
			t.Fatalf("elapsed %v: display = %q, want %q", tc.elapsed, cd.Display, tc.want)
		}
	}
}

func TestSessionStatusBadge(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	if got := SessionStatus(nil, now); got != SessionNoSession {
		t.Fatalf("nil start: got %q", got)
	}

	recent := now.Add(-59 * time.Minute)
	if got := SessionStatus(&recent, now); got != SessionActive {
		t.Fatalf("59m ago: got %q, want active", got)
	}

	// The badge window is a fixed hour even when the membership cap is longer.
	old := now.Add(-61 * time.Minute)
	if got := SessionStatus(&old, now); got != SessionExpired {
		t.Fatalf("61m ago: got %q, want expired", got)
	}
}

func TestVisibleVisitHistoryCaps(t *testing.T) {
	visits := make([]model.VisitedDay, 0, 5)
	for i := 0; i < 5; i++ {
		d := day("2026-08-01").AddDate(0, 0, i)
		visits = append(visits, model.VisitedDay{Day: d, StartTime: d.Add(9 * time.Hour)})
	}

	m := model.Membership{Tier: TierSupporter, VisitedDays: visits}
	got := VisibleVisitHistory(m)
	if len(got) != 3 {
		t.Fatalf("supporter sees %d visits, want 3", len(got))
	}
	for i, e := range got {
		if !e.Visit.Day.Equal(visits[i].Day) {
			t.Fatalf("entry %d is %v, want the FIRST three in original order", i, e.Visit.Day)
		}
	}

	m.Tier = TierLeader
	if got := VisibleVisitHistory(m); len(got) != 5 {
		t.Fatalf("leader sees %d visits, want 5", len(got))
	}
	m.Tier = TierLegacyMaker
	if got := VisibleVisitHistory(m); len(got) != 5 {
		t.Fatalf("legacy-maker sees %d visits, want all 5", len(got))
	}
}

func TestOrdinalLabels(t *testing.T) {
	want := map[int]string{1: "First", 2: "Second", 3: "3th", 4: "4th", 11: "11th", 21: "21th"}
	for pos, label := range want {
		if got := OrdinalLabel(pos); got != label {
			t.Fatalf("OrdinalLabel(%d) = %q, want %q", pos, got, label)
		}
	}
}

func TestEntitledGating(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	m := model.Membership{Tier: TierWalkIn, PaymentStatus: model.PaymentStatusPending}
	if Entitled(m, now) {
		t.Fatal("pending payment must not be entitled")
	}
	m.PaymentStatus = model.PaymentStatusActive
	m.Expiry = &past
	if Entitled(m, now) {
		t.Fatal("expired walk-in must not be entitled")
	}
	m.Expiry = &future
	if !Entitled(m, now) {
		t.Fatal("active unexpired walk-in must be entitled")
	}

	// A live session alone proves nothing about payment.
	m.PaymentStatus = model.PaymentStatusPending
	m.SessionStart = &past
	if Entitled(m, now) {
		t.Fatal("session start must not override payment status")
	}
}

func TestBookRemoveRebookScenario(t *testing.T) {
	now := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	d1, d2 := day("2026-09-01"), day("2026-09-02")

	m := model.Membership{
		Tier:         TierLeader,
		InitialHours: 5,
		AssignedDays: []model.AssignedDay{{Day: d1, AssignedHours: 5}},
	}
	if !IsMaxedOut(m) {
		t.Fatal("fully assigned membership must be maxed out")
	}
	if err := ValidateBooking(m, d2, 1, now); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("booking while maxed: err = %v, want ErrCapacityExceeded", err)
	}

	m.AssignedDays = RemoveDay(m.AssignedDays, d1)
	if IsMaxedOut(m) {
		t.Fatal("must not be maxed out after removing the day")
	}
	if err := ValidateBooking(m, d2, 1, now); err != nil {
		t.Fatalf("rebooking after removal: err = %v", err)
	}
	m.AssignedDays = AssignHours(m.AssignedDays, d2, 1)
	if got := HoursLeft(m).Hours; got != 4 {
		t.Fatalf("hours left = %d, want 4", got)
	}
}
