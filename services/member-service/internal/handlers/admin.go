package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/entitlement"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/outbox"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/pricing"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/storage"
)

// AdminMember serves the front-desk member card: lookup by phone (GET) and
// expired-account removal (DELETE).
func (h *MemberHandler) AdminMember(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.adminLookup(w, r)
	case http.MethodDelete:
		h.adminDeleteMember(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *MemberHandler) adminLookup(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		http.Error(w, "phone required", http.StatusBadRequest)
		return
	}

	m, err := h.members.GetByPhone(r.Context(), phone)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "member not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load member", http.StatusInternalServerError)
		return
	}

	payload, err := h.buildMemberPayload(r.Context(), m)
	if err != nil {
		http.Error(w, "failed to load member", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *MemberHandler) adminDeleteMember(w http.ResponseWriter, r *http.Request) {
	memberID := strings.TrimSpace(r.URL.Query().Get("member_id"))
	if memberID == "" {
		http.Error(w, "member_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	memberships, err := h.memberships.ListByMember(ctx, memberID)
	if err != nil {
		http.Error(w, "failed to load memberships", http.StatusInternalServerError)
		return
	}
	// Only accounts with no live entitlement may be removed.
	now := h.now()
	for _, ms := range memberships {
		if entitlement.Entitled(ms, now) {
			http.Error(w, "member still has an active membership", http.StatusConflict)
			return
		}
	}

	tx, err := h.members.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.members.Delete(ctx, tx, memberID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "member not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete member", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkVisitRequest struct {
	MembershipIDs []string `json:"membership_ids"`
}

// CheckVisit records a staff check-in for the selected memberships and opens
// their sessions. Entitlement is re-verified against the locked rows; a
// membership that lost its entitlement since the lookup fails the whole
// request so the desk sees fresh state.
func (h *MemberHandler) CheckVisit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(req.MembershipIDs) == 0 {
		http.Error(w, "membership_ids required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.memberships.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := h.now()
	day := entitlement.DateOnly(now)
	memberID := ""

	for _, rawID := range req.MembershipIDs {
		id := strings.TrimSpace(rawID)
		if id == "" {
			continue
		}
		ms, err := h.memberships.GetForUpdate(ctx, tx, id)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "membership not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load membership", http.StatusInternalServerError)
			return
		}
		if memberID == "" {
			memberID = ms.MemberID
		}
		if !entitlement.Entitled(ms, now) {
			http.Error(w, "membership changed since last fetch; reload and retry", http.StatusConflict)
			return
		}

		if err := h.memberships.AppendVisit(ctx, tx, ms.ID, day, now); err != nil {
			http.Error(w, "failed to record visit", http.StatusInternalServerError)
			return
		}
		if err := h.memberships.StartSession(ctx, tx, ms.ID, now, sessionCapFor(ms, day)); err != nil {
			http.Error(w, "failed to start session", http.StatusInternalServerError)
			return
		}

		payload, err := json.Marshal(map[string]any{
			"membership_id": ms.ID,
			"member_id":     ms.MemberID,
			"tier":          ms.Tier,
			"day":           day.Format(dayFormat),
			"start_time":    now.UTC().Format(time.RFC3339),
		})
		if err != nil {
			http.Error(w, "failed to build event payload", http.StatusInternalServerError)
			return
		}
		if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "membership",
			AggregateID:   ms.ID,
			EventType:     "member.visit.recorded.v1",
			Payload:       payload,
		}); err != nil {
			http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	memberships, err := h.memberships.ListByMember(ctx, memberID)
	if err != nil {
		http.Error(w, "failed to reload memberships", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memberships": membershipsToViews(memberships, now),
	})
}

// sessionCapFor picks the countdown cap for a fresh check-in: walk-ins get
// their purchased hours, legacy-maker is uncapped, subscription tiers get
// the hours booked for today (or a single hour when none were booked).
func sessionCapFor(ms model.Membership, day time.Time) *int {
	if ms.Tier == entitlement.TierLegacyMaker {
		return nil
	}
	if ms.Tier == entitlement.TierWalkIn {
		hours := ms.NumHours
		if hours < 1 {
			hours = 1
		}
		return &hours
	}
	for _, a := range ms.AssignedDays {
		if entitlement.DateOnly(a.Day).Equal(day) && a.AssignedHours > 0 {
			hours := a.AssignedHours
			return &hours
		}
	}
	hours := 1
	return &hours
}

type confirmCashRequest struct {
	MembershipID string `json:"membership_id"`
}

// ConfirmCashPayment flips a pending membership to active after the desk
// takes cash.
func (h *MemberHandler) ConfirmCashPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req confirmCashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.MembershipID = strings.TrimSpace(req.MembershipID)
	if req.MembershipID == "" {
		http.Error(w, "membership_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.memberships.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ms, err := h.memberships.GetForUpdate(ctx, tx, req.MembershipID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "membership not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load membership", http.StatusInternalServerError)
		return
	}
	if ms.PaymentStatus == model.PaymentStatusActive {
		writeJSON(w, http.StatusOK, membershipToView(ms, h.now()))
		return
	}

	if err := h.memberships.SetPaymentStatus(ctx, tx, ms.ID, model.PaymentStatusActive); err != nil {
		http.Error(w, "failed to update payment status", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"membership_id": ms.ID,
		"member_id":     ms.MemberID,
		"method":        "cash",
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "membership",
		AggregateID:   ms.ID,
		EventType:     "member.payment.confirmed.v1",
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	ms.PaymentStatus = model.PaymentStatusActive
	writeJSON(w, http.StatusOK, membershipToView(ms, h.now()))
}

type walkInItem struct {
	MembershipID        string `json:"membership_id"`
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	Day                 string `json:"day"`
	NumHours            int    `json:"num_hours"`
	NumParticipants     int    `json:"num_participants"`
	NumNonParticipating int    `json:"num_non_participating"`
	PaymentStatus       string `json:"payment_status"`
	AmountDue           string `json:"amount_due"`
	CreatedAt           string `json:"created_at"`
}

// WalkIns lists walk-in registrations, newest first.
func (h *MemberHandler) WalkIns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := h.memberships.ListWalkIns(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list walk-ins", http.StatusInternalServerError)
		return
	}

	items := make([]walkInItem, 0, len(records))
	for _, rec := range records {
		item := walkInItem{
			MembershipID:        rec.MembershipID,
			Name:                rec.MemberName,
			Phone:               rec.MemberPhone,
			Day:                 rec.Day.UTC().Format(dayFormat),
			NumHours:            rec.NumHours,
			NumParticipants:     rec.NumParticipants,
			NumNonParticipating: rec.NumNonParticipating,
			PaymentStatus:       rec.PaymentStatus,
			CreatedAt:           rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		cents, err := h.pricing.WalkInTotalCents(r.Context(), pricing.WalkInQuote{
			SchemaVersion:       2,
			NumHours:            rec.NumHours,
			NumParticipants:     rec.NumParticipants,
			NumNonParticipating: rec.NumNonParticipating,
		})
		if err == nil {
			item.AmountDue = pricing.FormatCents(cents)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}
