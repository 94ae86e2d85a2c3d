package pricing

import "testing"

func TestTierPrices(t *testing.T) {
	cases := []struct {
		tier      string
		isPrimary bool
		want      int64
	}{
		{TierLegacyMaker, true, 3500},
		{TierLeader, true, 2000},
		{TierSupporter, true, 800},
		{TierWalkIn, true, 700},
		{TierLegacyMaker, false, 1750},
		{TierLeader, false, 1000},
		{TierSupporter, false, 400},
	}
	for _, tc := range cases {
		got, err := TierPriceCents(tc.tier, tc.isPrimary)
		if err != nil {
			t.Fatalf("TierPriceCents(%q, %v) failed: %v", tc.tier, tc.isPrimary, err)
		}
		if got != tc.want {
			t.Fatalf("TierPriceCents(%q, %v) = %d, want %d", tc.tier, tc.isPrimary, got, tc.want)
		}
	}

	if _, err := TierPriceCents("platinum", true); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestRegistrationTotalIsOrderDependent(t *testing.T) {
	total, err := RegistrationTotalCents([]string{TierLeader, TierSupporter})
	if err != nil {
		t.Fatalf("leader+supporter failed: %v", err)
	}
	if total != 2400 {
		t.Fatalf("leader then supporter = %d cents, want 2400 (20 + 8*0.5)", total)
	}

	total, err = RegistrationTotalCents([]string{TierSupporter, TierLeader})
	if err != nil {
		t.Fatalf("supporter+leader failed: %v", err)
	}
	if total != 1800 {
		t.Fatalf("supporter then leader = %d cents, want 1800 (8 + 20*0.5)", total)
	}

	// The discount is half of the family member's OWN tier, even when that
	// tier is pricier than the primary's.
	total, err = RegistrationTotalCents([]string{TierSupporter, TierLegacyMaker})
	if err != nil {
		t.Fatalf("supporter+legacy-maker failed: %v", err)
	}
	if total != 800+1750 {
		t.Fatalf("supporter then legacy-maker = %d cents, want 2550", total)
	}
}

func TestWalkInPerHeadSchema(t *testing.T) {
	total, err := WalkInTotalCents(WalkInInputs{SchemaVersion: 1, NumAdults: 2, NumChildren: 3})
	if err != nil {
		t.Fatalf("schema 1 failed: %v", err)
	}
	if total != 2450 {
		t.Fatalf("2 adults + 3 children = %d cents, want 2450", total)
	}
	if FormatAmount(total) != "24.50" {
		t.Fatalf("display = %q, want 24.50", FormatAmount(total))
	}
}

func TestWalkInPerHourSchema(t *testing.T) {
	cases := []struct {
		in   WalkInInputs
		want int64
	}{
		{WalkInInputs{SchemaVersion: 2, NumHours: 2, NumParticipants: 3, NumNonParticipating: 2}, 3150},
		{WalkInInputs{SchemaVersion: 2, NumHours: 1, NumParticipants: 1}, 700},
		{WalkInInputs{SchemaVersion: 2, NumHours: 1, NumParticipants: 1, NumNonParticipating: 1}, 950},
		{WalkInInputs{SchemaVersion: 2, NumHours: 4, NumParticipants: 2, NumNonParticipating: 0}, 4200},
	}
	for _, tc := range cases {
		total, err := WalkInTotalCents(tc.in)
		if err != nil {
			t.Fatalf("%+v failed: %v", tc.in, err)
		}
		if total != tc.want {
			t.Fatalf("%+v = %d cents, want %d", tc.in, total, tc.want)
		}
	}
}

func TestUnknownWalkInSchemaRejected(t *testing.T) {
	if _, err := WalkInTotalCents(WalkInInputs{SchemaVersion: 9}); err == nil {
		t.Fatal("expected error for unknown schema version")
	}
}
