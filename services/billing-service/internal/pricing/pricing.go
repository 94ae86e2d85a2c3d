// Package pricing is the price book for Legacy Hub memberships. All amounts
// are integer cents; dollars appear only at the display/charge boundary via
// FormatAmount, so multi-term walk-in formulas never accumulate rounding
// drift.
package pricing

import "fmt"

const (
	TierLegacyMaker = "legacy-maker"
	TierLeader      = "leader"
	TierSupporter   = "supporter"
	TierWalkIn      = "walk-in"
)

var tierPriceCents = map[string]int64{
	TierLegacyMaker: 3500,
	TierLeader:      2000,
	TierSupporter:   800,
	TierWalkIn:      700,
}

// TierPriceCents returns the monthly price for a tier. isPrimary selects the
// family discount: the first membership of a registration is billed in full,
// every later one at half of its OWN tier price (never half of the
// primary's).
func TierPriceCents(tier string, isPrimary bool) (int64, error) {
	price, ok := tierPriceCents[tier]
	if !ok {
		return 0, fmt.Errorf("unknown membership tier %q", tier)
	}
	if !isPrimary {
		return price / 2, nil
	}
	return price, nil
}

// RegistrationTotalCents prices an ordered set of simultaneously registered
// memberships. Order matters: position zero is the primary.
func RegistrationTotalCents(tiers []string) (int64, error) {
	var total int64
	for i, tier := range tiers {
		price, err := TierPriceCents(tier, i == 0)
		if err != nil {
			return 0, err
		}
		total += price
	}
	return total, nil
}

// WalkInInputs carries the inputs of both walk-in pricing schemas. The two
// are incompatible shapes, not revisions of one formula, so the schema
// version picks the policy explicitly.
type WalkInInputs struct {
	SchemaVersion       int
	NumAdults           int
	NumChildren         int
	NumHours            int
	NumParticipants     int
	NumNonParticipating int
}

// WalkInTotalCents prices a walk-in booking under the requested schema.
//
// Schema 1 bills per head: adults at the full hourly rate, children at half.
// Schema 2 bills per hour: the first participant at the full rate, each
// additional at half, plus a flat fee for the first non-participating adult
// and a dollar for each further one.
func WalkInTotalCents(in WalkInInputs) (int64, error) {
	switch in.SchemaVersion {
	case 1:
		return int64(in.NumAdults)*700 + int64(in.NumChildren)*350, nil
	case 2:
		total := int64(in.NumHours) * 700
		if in.NumParticipants > 1 {
			total += int64(in.NumHours) * 350 * int64(in.NumParticipants-1)
		}
		if in.NumNonParticipating >= 1 {
			total += 250
			total += 100 * int64(in.NumNonParticipating-1)
		}
		return total, nil
	default:
		return 0, fmt.Errorf("unknown walk-in pricing schema version %d", in.SchemaVersion)
	}
}

// FormatAmount renders cents as a two-decimal dollar string.
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
