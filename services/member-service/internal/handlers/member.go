package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/legacy-hub/legacyhub/services/member-service/internal/entitlement"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/outbox"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/pricing"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/storage"
)

type MemberHandler struct {
	members     *storage.MemberRepository
	memberships *storage.MembershipRepository
	outboxRepo  *outbox.Repository
	pricing     pricing.Provider
	logger      *slog.Logger
	now         func() time.Time
}

func NewMemberHandler(members *storage.MemberRepository, memberships *storage.MembershipRepository, outboxRepo *outbox.Repository, pricingProvider pricing.Provider, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{
		members:     members,
		memberships: memberships,
		outboxRepo:  outboxRepo,
		pricing:     pricingProvider,
		logger:      logger,
		now:         time.Now,
	}
}

type memberView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone"`
	Address   string `json:"address,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

type familyView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type memberPayload struct {
	Member         memberView       `json:"member"`
	Family         []familyView     `json:"family"`
	Memberships    []membershipView `json:"memberships"`
	AmountDueCents int64            `json:"amount_due_cents"`
	AmountDue      string           `json:"amount_due"`
}

func memberToView(m model.Member) memberView {
	return memberView{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Address:   m.Address,
		PhotoURL:  m.PhotoURL,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// buildMemberPayload assembles the full portal projection for one member:
// profile, family, memberships with derived entitlement figures, and the
// amount still due across pending walk-in passes.
func (h *MemberHandler) buildMemberPayload(ctx context.Context, m model.Member) (memberPayload, error) {
	family, err := h.members.ListFamily(ctx, m.ID)
	if err != nil {
		return memberPayload{}, err
	}
	memberships, err := h.memberships.ListByMember(ctx, m.ID)
	if err != nil {
		return memberPayload{}, err
	}

	now := h.now()
	payload := memberPayload{
		Member:      memberToView(m),
		Family:      make([]familyView, 0, len(family)),
		Memberships: membershipsToViews(memberships, now),
	}
	for _, fm := range family {
		payload.Family = append(payload.Family, familyView{ID: fm.ID, Name: fm.Name})
	}

	for _, ms := range memberships {
		if ms.Tier != entitlement.TierWalkIn || ms.PaymentStatus != model.PaymentStatusPending {
			continue
		}
		cents, err := h.pricing.WalkInTotalCents(ctx, walkInQuoteFor(ms))
		if err != nil {
			h.logger.Warn("walk-in quote failed", "membership_id", ms.ID, "err", err)
			continue
		}
		payload.AmountDueCents += cents
	}
	payload.AmountDue = pricing.FormatCents(payload.AmountDueCents)
	return payload, nil
}

func walkInQuoteFor(ms model.Membership) pricing.WalkInQuote {
	if ms.NumHours > 0 || ms.NumParticipants > 0 {
		return pricing.WalkInQuote{
			SchemaVersion:       2,
			NumHours:            ms.NumHours,
			NumParticipants:     ms.NumParticipants,
			NumNonParticipating: ms.NumNonParticipating,
		}
	}
	return pricing.WalkInQuote{
		SchemaVersion: 1,
		NumAdults:     ms.NumAdults,
		NumChildren:   ms.NumChildren,
	}
}

// Me serves the self-service portal fetch. The gateway injects the caller's
// identity after token verification.
func (h *MemberHandler) Me(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.me(w, r)
	case http.MethodPut:
		h.updateProfile(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *MemberHandler) me(w http.ResponseWriter, r *http.Request) {
	memberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	if memberID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	m, err := h.members.GetByID(r.Context(), memberID)
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

type updateProfileRequest struct {
	Address  string `json:"address"`
	PhotoURL string `json:"photo_url"`
}

func (h *MemberHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	memberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	if memberID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	req.PhotoURL = strings.TrimSpace(req.PhotoURL)
	if req.Address == "" && req.PhotoURL == "" {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}

	if err := h.members.UpdateProfile(r.Context(), memberID, req.Address, req.PhotoURL); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "member not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update profile", http.StatusInternalServerError)
		return
	}

	m, err := h.members.GetByID(r.Context(), memberID)
	if err != nil {
		http.Error(w, "failed to load member", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, memberToView(m))
}

type addFamilyRequest struct {
	Name string `json:"name"`
}

type addFamilyResponse struct {
	FamilyMemberID string `json:"family_member_id"`
	MembershipID   string `json:"membership_id"`
	Tier           string `json:"tier"`
	PaymentStatus  string `json:"payment_status"`
}

// AddFamily registers a dependent under the caller's account. The new
// membership inherits the primary's tier and stays pending until billing
// confirms the discounted charge.
func (h *MemberHandler) AddFamily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	memberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	if memberID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req addFamilyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	memberships, err := h.memberships.ListByMember(ctx, memberID)
	if err != nil {
		http.Error(w, "failed to load memberships", http.StatusInternalServerError)
		return
	}
	tier := primaryTier(memberships)
	if tier == "" {
		http.Error(w, "no active subscription to inherit", http.StatusUnprocessableEntity)
		return
	}

	tx, err := h.members.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	familyID, err := h.members.CreateFamilyMember(ctx, tx, &model.FamilyMember{MemberID: memberID, Name: req.Name})
	if err != nil {
		http.Error(w, "failed to create family member", http.StatusInternalServerError)
		return
	}
	membershipID, err := h.memberships.Create(ctx, tx, &model.Membership{
		MemberID:       memberID,
		FamilyMemberID: familyID,
		Tier:           tier,
		InitialHours:   initialHoursForTier(tier),
		PaymentStatus:  model.PaymentStatusPending,
	})
	if err != nil {
		http.Error(w, "failed to create membership", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, addFamilyResponse{
		FamilyMemberID: familyID,
		MembershipID:   membershipID,
		Tier:           tier,
		PaymentStatus:  model.PaymentStatusPending,
	})
}

// primaryTier picks the tier of the primary's own subscription membership,
// preferring an active one.
func primaryTier(memberships []model.Membership) string {
	tier := ""
	for _, ms := range memberships {
		if ms.FamilyMemberID != "" || ms.Tier == entitlement.TierWalkIn {
			continue
		}
		if ms.PaymentStatus == model.PaymentStatusActive {
			return ms.Tier
		}
		if tier == "" {
			tier = ms.Tier
		}
	}
	return tier
}

func initialHoursForTier(tier string) int {
	switch tier {
	case entitlement.TierLegacyMaker:
		return 0
	case entitlement.TierLeader:
		return 10
	case entitlement.TierSupporter:
		return 5
	default:
		return 1
	}
}

type bookVisitRequest struct {
	MembershipID      string `json:"membership_id"`
	Day               string `json:"day"`
	Hours             int    `json:"hours"`
	ExpectedHoursLeft *int   `json:"expected_hours_left,omitempty"`
}

// Bookings books hours onto a day (POST) or removes a day entirely (DELETE).
// Preconditions are re-checked against the row-locked server state, so a
// stale client copy can never oversubscribe the entitlement.
func (h *MemberHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.bookVisit(w, r)
	case http.MethodDelete:
		h.removeBooking(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *MemberHandler) bookVisit(w http.ResponseWriter, r *http.Request) {
	memberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	if memberID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req bookVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.MembershipID = strings.TrimSpace(req.MembershipID)
	day, err := time.ParseInLocation(dayFormat, strings.TrimSpace(req.Day), time.UTC)
	if req.MembershipID == "" || err != nil {
		http.Error(w, "membership_id and day (YYYY-MM-DD) required", http.StatusBadRequest)
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
	if ms.MemberID != memberID {
		http.Error(w, "membership not found", http.StatusNotFound)
		return
	}

	now := h.now()
	if req.ExpectedHoursLeft != nil && ms.Tier != entitlement.TierLegacyMaker {
		if left := entitlement.HoursLeft(ms); left.Hours != *req.ExpectedHoursLeft {
			http.Error(w, "membership changed since last fetch; reload and retry", http.StatusConflict)
			return
		}
	}
	if err := entitlement.ValidateBooking(ms, day, req.Hours, now); err != nil {
		writeBookingError(w, err)
		return
	}

	if err := h.memberships.AssignHours(ctx, tx, ms.ID, entitlement.DateOnly(day), req.Hours); err != nil {
		http.Error(w, "failed to assign hours", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	ms.AssignedDays = entitlement.AssignHours(ms.AssignedDays, day, req.Hours)
	writeJSON(w, http.StatusOK, membershipToView(ms, now))
}

func writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entitlement.ErrCapacityExceeded):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, entitlement.ErrInvalidDate), errors.Is(err, entitlement.ErrInvalidHours):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, entitlement.ErrStaleState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "booking rejected", http.StatusInternalServerError)
	}
}

func (h *MemberHandler) removeBooking(w http.ResponseWriter, r *http.Request) {
	memberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	if memberID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	membershipID := strings.TrimSpace(r.URL.Query().Get("membership_id"))
	day, err := time.ParseInLocation(dayFormat, strings.TrimSpace(r.URL.Query().Get("day")), time.UTC)
	if membershipID == "" || err != nil {
		http.Error(w, "membership_id and day (YYYY-MM-DD) required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.memberships.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ms, err := h.memberships.GetForUpdate(ctx, tx, membershipID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "membership not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load membership", http.StatusInternalServerError)
		return
	}
	if ms.MemberID != memberID {
		http.Error(w, "membership not found", http.StatusNotFound)
		return
	}

	// Removal is whole-day: the entire entry goes, not a partial decrement.
	if err := h.memberships.RemoveAssignment(ctx, tx, ms.ID, entitlement.DateOnly(day)); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "no booking on that day", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to remove booking", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	ms.AssignedDays = entitlement.RemoveDay(ms.AssignedDays, day)
	writeJSON(w, http.StatusOK, membershipToView(ms, h.now()))
}

// Session reports the live countdown for one membership, computed fresh on
// every request.
func (h *MemberHandler) Session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	memberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	if memberID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	memberships, err := h.memberships.ListByMember(r.Context(), memberID)
	if err != nil {
		http.Error(w, "failed to load memberships", http.StatusInternalServerError)
		return
	}

	membershipID := strings.TrimSpace(r.URL.Query().Get("membership_id"))
	now := h.now()
	for _, ms := range memberships {
		if membershipID != "" && ms.ID != membershipID {
			continue
		}
		if ms.SessionStart == nil {
			continue
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"membership_id": ms.ID,
			"session":       sessionToView(ms, now),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": &sessionView{Status: string(entitlement.SessionNoSession)},
	})
}
