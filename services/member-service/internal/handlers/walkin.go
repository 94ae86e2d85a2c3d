package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/entitlement"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/outbox"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/pricing"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/storage"
)

type walkInRequest struct {
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	Email               string `json:"email"`
	Day                 string `json:"day"`
	NumHours            int    `json:"num_hours"`
	NumParticipants     int    `json:"num_participants"`
	NumNonParticipating int    `json:"num_non_participating"`
	PaymentMethod       string `json:"payment_method"`
}

type walkInResponse struct {
	MembershipID   string `json:"membership_id"`
	MemberID       string `json:"member_id"`
	AmountDueCents int64  `json:"amount_due_cents"`
	AmountDue      string `json:"amount_due"`
	PaymentStatus  string `json:"payment_status"`
	Expiry         string `json:"expiry"`
}

// RegisterWalkIn creates a walk-in pass for the selected day. The pass stays
// pending until the desk confirms cash or billing reports the card charge;
// it voids at the end of the selected day either way.
func (h *MemberHandler) RegisterWalkIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req walkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if req.Name == "" || req.Phone == "" {
		http.Error(w, "name and phone required", http.StatusBadRequest)
		return
	}
	if req.PaymentMethod != "cash" && req.PaymentMethod != "card" {
		http.Error(w, "payment_method must be cash or card", http.StatusBadRequest)
		return
	}

	day, err := time.ParseInLocation(dayFormat, strings.TrimSpace(req.Day), time.UTC)
	if err != nil {
		http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	now := h.now()
	if entitlement.DateOnly(day).Before(entitlement.DateOnly(now)) {
		http.Error(w, "day must not be in the past", http.StatusBadRequest)
		return
	}
	if req.NumHours < 1 || req.NumParticipants < 1 || req.NumNonParticipating < 0 {
		http.Error(w, "invalid party size", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	amount, err := h.pricing.WalkInTotalCents(ctx, pricing.WalkInQuote{
		SchemaVersion:       2,
		NumHours:            req.NumHours,
		NumParticipants:     req.NumParticipants,
		NumNonParticipating: req.NumNonParticipating,
	})
	if err != nil {
		http.Error(w, "pricing unavailable", http.StatusServiceUnavailable)
		return
	}

	tx, err := h.members.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	memberID := ""
	if existing, err := h.members.GetByPhone(ctx, req.Phone); err == nil {
		memberID = existing.ID
	} else if !storage.IsNotFound(err) {
		http.Error(w, "failed to look up member", http.StatusInternalServerError)
		return
	}
	if memberID == "" {
		memberID, err = h.members.Create(ctx, tx, &model.Member{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
		})
		if err != nil {
			http.Error(w, "failed to create member", http.StatusInternalServerError)
			return
		}
	}

	// The pass voids at the end of the selected day.
	expiry := entitlement.DateOnly(day).AddDate(0, 0, 1)
	membershipID, err := h.memberships.Create(ctx, tx, &model.Membership{
		MemberID:            memberID,
		Tier:                entitlement.TierWalkIn,
		Expiry:              &expiry,
		InitialHours:        req.NumHours,
		NumHours:            req.NumHours,
		NumParticipants:     req.NumParticipants,
		NumNonParticipating: req.NumNonParticipating,
		PaymentStatus:       model.PaymentStatusPending,
	})
	if err != nil {
		http.Error(w, "failed to create membership", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"membership_id":         membershipID,
		"member_id":             memberID,
		"name":                  req.Name,
		"phone":                 req.Phone,
		"email":                 req.Email,
		"day":                   entitlement.DateOnly(day).Format(dayFormat),
		"num_hours":             req.NumHours,
		"num_participants":      req.NumParticipants,
		"num_non_participating": req.NumNonParticipating,
		"amount_due_cents":      amount,
		"payment_method":        req.PaymentMethod,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "membership",
		AggregateID:   membershipID,
		EventType:     "member.walkin.registered.v1",
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, walkInResponse{
		MembershipID:   membershipID,
		MemberID:       memberID,
		AmountDueCents: amount,
		AmountDue:      pricing.FormatCents(amount),
		PaymentStatus:  model.PaymentStatusPending,
		Expiry:         expiry.UTC().Format(time.RFC3339),
	})
}
