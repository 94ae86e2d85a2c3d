package handlers

import "testing"

func TestChargeAmountForRegistration(t *testing.T) {
	h := &Handler{}
	amount, err := h.chargeAmountCents([]string{"leader", "supporter"}, nil)
	if err != nil {
		t.Fatalf("charge amount failed: %v", err)
	}
	if amount != 2400 {
		t.Fatalf("amount = %d cents, want 2400", amount)
	}

	if _, err := h.chargeAmountCents([]string{"gold"}, nil); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestChargeAmountForWalkIn(t *testing.T) {
	h := &Handler{}
	amount, err := h.chargeAmountCents([]string{"walk-in"}, &chargeWalkIn{
		NumHours:            2,
		NumParticipants:     3,
		NumNonParticipating: 2,
	})
	if err != nil {
		t.Fatalf("charge amount failed: %v", err)
	}
	if amount != 3150 {
		t.Fatalf("amount = %d cents, want 3150", amount)
	}

	if _, err := h.chargeAmountCents([]string{"leader"}, &chargeWalkIn{NumHours: 1}); err == nil {
		t.Fatal("expected error when walk_in inputs accompany a non walk-in tier")
	}
}
