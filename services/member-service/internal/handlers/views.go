package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/entitlement"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
)

type assignedDayView struct {
	Day           string `json:"day"`
	AssignedHours int    `json:"assigned_hours"`
}

type visitView struct {
	Label     string `json:"label"`
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
}

type sessionView struct {
	Status    string `json:"status"`
	Unlimited bool   `json:"unlimited,omitempty"`
	Expired   bool   `json:"expired,omitempty"`
	Countdown string `json:"countdown,omitempty"`
}

// membershipView is the wire projection of one membership: raw state plus
// every derived figure the portals display. Clients render it wholesale
// instead of recomputing entitlement locally.
type membershipView struct {
	ID             string            `json:"id"`
	Tier           string            `json:"tier"`
	FamilyMemberID string            `json:"family_member_id,omitempty"`
	CreatedAt      string            `json:"created_at"`
	Expiry         string            `json:"expiry,omitempty"`
	InitialHours   int               `json:"initial_hours"`
	PaymentStatus  string            `json:"payment_status"`
	HoursLeft      string            `json:"hours_left"`
	IsMaxedOut     bool              `json:"is_maxed_out"`
	Entitled       bool              `json:"entitled"`
	AssignedDays   []assignedDayView `json:"assigned_days"`
	Visits         []visitView       `json:"visits"`
	Session        *sessionView      `json:"session,omitempty"`
}

const dayFormat = "2006-01-02"

func membershipToView(ms model.Membership, now time.Time) membershipView {
	v := membershipView{
		ID:             ms.ID,
		Tier:           ms.Tier,
		FamilyMemberID: ms.FamilyMemberID,
		CreatedAt:      ms.CreatedAt.UTC().Format(time.RFC3339),
		InitialHours:   ms.InitialHours,
		PaymentStatus:  ms.PaymentStatus,
		HoursLeft:      entitlement.HoursLeft(ms).Display(),
		IsMaxedOut:     entitlement.IsMaxedOut(ms),
		Entitled:       entitlement.Entitled(ms, now),
		AssignedDays:   make([]assignedDayView, 0, len(ms.AssignedDays)),
		Visits:         make([]visitView, 0, len(ms.VisitedDays)),
	}
	if ms.Expiry != nil {
		v.Expiry = ms.Expiry.UTC().Format(time.RFC3339)
	}
	for _, a := range ms.AssignedDays {
		v.AssignedDays = append(v.AssignedDays, assignedDayView{
			Day:           a.Day.UTC().Format(dayFormat),
			AssignedHours: a.AssignedHours,
		})
	}
	for _, e := range entitlement.VisibleVisitHistory(ms) {
		v.Visits = append(v.Visits, visitView{
			Label:     e.Label,
			Day:       e.Visit.Day.UTC().Format(dayFormat),
			StartTime: e.Visit.StartTime.UTC().Format(time.RFC3339),
		})
	}
	if ms.SessionStart != nil {
		v.Session = sessionToView(ms, now)
	}
	return v
}

func sessionToView(ms model.Membership, now time.Time) *sessionView {
	sv := &sessionView{Status: string(entitlement.SessionStatus(ms.SessionStart, now))}
	if ms.SessionStart == nil {
		return sv
	}
	cd := entitlement.RemainingSessionTime(*ms.SessionStart, ms.SessionMaxHours, now)
	sv.Unlimited = cd.Unlimited
	sv.Expired = cd.Expired
	sv.Countdown = cd.Display
	return sv
}

func membershipsToViews(memberships []model.Membership, now time.Time) []membershipView {
	views := make([]membershipView, 0, len(memberships))
	for _, ms := range memberships {
		views = append(views, membershipToView(ms, now))
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
