package pricing

import (
	"context"
	"testing"
)

func TestWalkInPerHeadPricing(t *testing.T) {
	p := NewStaticProvider()
	cents, err := p.WalkInTotalCents(context.Background(), WalkInQuote{
		SchemaVersion: 1,
		NumAdults:     2,
		NumChildren:   3,
	})
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if cents != 2450 {
		t.Fatalf("total = %d cents, want 2450", cents)
	}
	if FormatCents(cents) != "24.50" {
		t.Fatalf("display = %q, want 24.50", FormatCents(cents))
	}
}

func TestWalkInPerHourPricing(t *testing.T) {
	p := NewStaticProvider()
	cases := []struct {
		q    WalkInQuote
		want int64
	}{
		{WalkInQuote{SchemaVersion: 2, NumHours: 2, NumParticipants: 3, NumNonParticipating: 2}, 3150},
		{WalkInQuote{SchemaVersion: 2, NumHours: 1, NumParticipants: 1}, 700},
		{WalkInQuote{SchemaVersion: 2, NumHours: 1, NumParticipants: 1, NumNonParticipating: 1}, 950},
		{WalkInQuote{SchemaVersion: 2, NumHours: 3, NumParticipants: 2}, 3150},
	}
	for _, tc := range cases {
		cents, err := p.WalkInTotalCents(context.Background(), tc.q)
		if err != nil {
			t.Fatalf("quote %+v failed: %v", tc.q, err)
		}
		if cents != tc.want {
			t.Fatalf("quote %+v = %d cents, want %d", tc.q, cents, tc.want)
		}
	}
}

func TestUnknownSchemaVersionRejected(t *testing.T) {
	p := NewStaticProvider()
	if _, err := p.WalkInTotalCents(context.Background(), WalkInQuote{SchemaVersion: 3}); err == nil {
		t.Fatal("expected error for unknown schema version")
	}
}
