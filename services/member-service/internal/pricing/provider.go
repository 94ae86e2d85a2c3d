// Package pricing quotes walk-in charges for the front desk. The billing
// service owns the authoritative price book; the static provider mirrors the
// current policies for when the billing gRPC endpoint is not reachable.
package pricing

import (
	"context"
	"fmt"
)

// WalkInQuote carries the inputs of either walk-in pricing schema. Version 1
// bills per head (adults/children); version 2 bills per hour and participant.
type WalkInQuote struct {
	SchemaVersion       int
	NumAdults           int
	NumChildren         int
	NumHours            int
	NumParticipants     int
	NumNonParticipating int
}

type Provider interface {
	// WalkInTotalCents returns the amount due in cents.
	WalkInTotalCents(ctx context.Context, q WalkInQuote) (int64, error)
}

type staticProvider struct{}

func NewStaticProvider() Provider {
	return staticProvider{}
}

func (staticProvider) WalkInTotalCents(_ context.Context, q WalkInQuote) (int64, error) {
	switch q.SchemaVersion {
	case 1:
		return int64(q.NumAdults)*700 + int64(q.NumChildren)*350, nil
	case 2:
		total := int64(q.NumHours) * 700
		if q.NumParticipants > 1 {
			total += int64(q.NumHours) * 350 * int64(q.NumParticipants-1)
		}
		if q.NumNonParticipating >= 1 {
			total += 250
			total += 100 * int64(q.NumNonParticipating-1)
		}
		return total, nil
	default:
		return 0, fmt.Errorf("unknown walk-in pricing schema version %d", q.SchemaVersion)
	}
}

// FormatCents renders a cent amount as dollars with two decimals. Rounding
// never happens earlier than this display boundary.
func FormatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
