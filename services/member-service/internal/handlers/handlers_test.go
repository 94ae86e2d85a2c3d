package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/entitlement"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
)

func TestSessionCapFor(t *testing.T) {
	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	if got := sessionCapFor(model.Membership{Tier: entitlement.TierLegacyMaker}, day); got != nil {
		t.Fatalf("legacy-maker cap = %v, want nil (uncapped)", *got)
	}

	got := sessionCapFor(model.Membership{Tier: entitlement.TierWalkIn, NumHours: 3}, day)
	if got == nil || *got != 3 {
		t.Fatalf("walk-in cap = %v, want 3", got)
	}
	got = sessionCapFor(model.Membership{Tier: entitlement.TierWalkIn}, day)
	if got == nil || *got != 1 {
		t.Fatalf("walk-in without hours cap = %v, want 1", got)
	}

	ms := model.Membership{
		Tier: entitlement.TierLeader,
		AssignedDays: []model.AssignedDay{
			{Day: day.AddDate(0, 0, -1), AssignedHours: 4},
			{Day: day, AssignedHours: 2},
		},
	}
	got = sessionCapFor(ms, day)
	if got == nil || *got != 2 {
		t.Fatalf("leader cap = %v, want today's 2 booked hours", got)
	}
	got = sessionCapFor(model.Membership{Tier: entitlement.TierSupporter}, day)
	if got == nil || *got != 1 {
		t.Fatalf("supporter without booking cap = %v, want 1", got)
	}
}

func TestPrimaryTierPrefersActiveSubscription(t *testing.T) {
	memberships := []model.Membership{
		{Tier: entitlement.TierWalkIn, PaymentStatus: model.PaymentStatusActive},
		{Tier: entitlement.TierSupporter, PaymentStatus: model.PaymentStatusPending},
		{Tier: entitlement.TierLeader, PaymentStatus: model.PaymentStatusActive},
		{Tier: entitlement.TierLegacyMaker, FamilyMemberID: "fam-1", PaymentStatus: model.PaymentStatusActive},
	}
	if got := primaryTier(memberships); got != entitlement.TierLeader {
		t.Fatalf("primary tier = %q, want leader", got)
	}
	if got := primaryTier(nil); got != "" {
		t.Fatalf("primary tier of none = %q, want empty", got)
	}
}

func TestWalkInQuoteForPicksSchema(t *testing.T) {
	q := walkInQuoteFor(model.Membership{NumHours: 2, NumParticipants: 3})
	if q.SchemaVersion != 2 {
		t.Fatalf("schema = %d, want 2 for hour-based records", q.SchemaVersion)
	}
	q = walkInQuoteFor(model.Membership{NumAdults: 2, NumChildren: 1})
	if q.SchemaVersion != 1 {
		t.Fatalf("schema = %d, want 1 for head-count records", q.SchemaVersion)
	}
}

func TestWriteBookingErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{entitlement.ErrCapacityExceeded, http.StatusUnprocessableEntity},
		{entitlement.ErrInvalidDate, http.StatusBadRequest},
		{entitlement.ErrInvalidHours, http.StatusBadRequest},
		{entitlement.ErrStaleState, http.StatusConflict},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeBookingError(rec, tc.err)
		if rec.Code != tc.want {
			t.Fatalf("%v mapped to %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestMembershipViewProjection(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	start := now.Add(-30 * time.Minute)
	two := 2
	ms := model.Membership{
		ID:            "ms-1",
		Tier:          entitlement.TierSupporter,
		CreatedAt:     now.AddDate(0, -1, 0),
		InitialHours:  5,
		PaymentStatus: model.PaymentStatusActive,
		AssignedDays: []model.AssignedDay{
			{Day: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), AssignedHours: 2},
		},
		VisitedDays: []model.VisitedDay{
			{Day: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), StartTime: now.AddDate(0, 0, -28)},
			{Day: time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC), StartTime: now.AddDate(0, 0, -21)},
			{Day: time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), StartTime: now.AddDate(0, 0, -14)},
			{Day: time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC), StartTime: now.AddDate(0, 0, -7)},
		},
		SessionStart:    &start,
		SessionMaxHours: &two,
	}

	v := membershipToView(ms, now)
	if v.HoursLeft != "3" {
		t.Fatalf("hours_left = %q, want 3", v.HoursLeft)
	}
	if v.IsMaxedOut {
		t.Fatal("membership is not maxed out")
	}
	if !v.Entitled {
		t.Fatal("active membership must be entitled")
	}
	if len(v.Visits) != 3 {
		t.Fatalf("supporter sees %d visits, want 3", len(v.Visits))
	}
	if v.Visits[0].Label != "First" || v.Visits[2].Label != "3th" {
		t.Fatalf("visit labels = %q,%q, want First,3th", v.Visits[0].Label, v.Visits[2].Label)
	}
	if v.Session == nil {
		t.Fatal("session view missing")
	}
	if v.Session.Status != string(entitlement.SessionActive) {
		t.Fatalf("session status = %q, want active", v.Session.Status)
	}
	if v.Session.Countdown != "30:00" {
		t.Fatalf("countdown = %q, want 30:00", v.Session.Countdown)
	}
}
