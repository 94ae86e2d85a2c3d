package entitlement

import (
	"fmt"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
)

// Per-tier caps on how many historical visits are surfaced. The cap keeps
// the FIRST entries in insertion order, not the most recent ones.
const (
	historyCapLeader    = 5
	historyCapSupporter = 3
)

type VisitEntry struct {
	Label string
	Visit model.VisitedDay
}

// VisibleVisitHistory returns the visits a member of this tier gets to see,
// oldest first, each labeled with its ordinal position.
func VisibleVisitHistory(m model.Membership) []VisitEntry {
	visits := m.VisitedDays
	switch m.Tier {
	case TierLeader:
		if len(visits) > historyCapLeader {
			visits = visits[:historyCapLeader]
		}
	case TierSupporter:
		if len(visits) > historyCapSupporter {
			visits = visits[:historyCapSupporter]
		}
	}

	entries := make([]VisitEntry, 0, len(visits))
	for i, v := range visits {
		entries = append(entries, VisitEntry{Label: OrdinalLabel(i + 1), Visit: v})
	}
	return entries
}

// OrdinalLabel names a 1-based position: "First", "Second", then a uniform
// numeric "th" suffix ("3th", "4th", ...). The suffix is kept as-is; member
// communications have used it since launch.
func OrdinalLabel(pos int) string {
	switch pos {
	case 1:
		return "First"
	case 2:
		return "Second"
	default:
		return fmt.Sprintf("%dth", pos)
	}
}
