package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/legacy-hub/legacyhub/services/billing-service/internal/outbox"
	"github.com/legacy-hub/legacyhub/services/billing-service/internal/payments"
	"github.com/legacy-hub/legacyhub/services/billing-service/internal/pricing"
	"github.com/legacy-hub/legacyhub/services/billing-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

type Handler struct {
	repo                   *storage.Repository
	outboxRepo             *outbox.Repository
	paySvc                 *payments.Service
	logger                 *slog.Logger
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	stripeSecretKey        string
}

type Config struct {
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
	StripeSecretKey               string
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	return &Handler{
		repo:                   repo,
		outboxRepo:             outboxRepo,
		paySvc:                 payments.New(repo, outboxRepo),
		logger:                 logger,
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
		stripeSecretKey:        strings.TrimSpace(cfg.StripeSecretKey),
	}
}

type chargeMembership struct {
	MembershipID string `json:"membership_id"`
	Tier         string `json:"tier"`
}

type chargeWalkIn struct {
	SchemaVersion       int `json:"schema_version"`
	NumAdults           int `json:"num_adults"`
	NumChildren         int `json:"num_children"`
	NumHours            int `json:"num_hours"`
	NumParticipants     int `json:"num_participants"`
	NumNonParticipating int `json:"num_non_participating"`
}

type chargeRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	MemberID        string `json:"member_id,omitempty"` // staff only; members charge themselves
	// Order matters: the first membership is billed at full price, the rest
	// at half of their own tier price.
	Memberships []chargeMembership `json:"memberships"`
	WalkIn      *chargeWalkIn      `json:"walk_in,omitempty"`
}

// Charge confirms a card payment for one or more memberships in a single
// Stripe payment intent. A decline leaves every membership untouched and
// surfaces Stripe's message to the caller unchanged.
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeSecretKey == "" {
		http.Error(w, "stripe billing not configured (STRIPE_SECRET_KEY missing)", http.StatusNotImplemented)
		return
	}

	var req chargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PaymentMethodID = strings.TrimSpace(req.PaymentMethodID)
	req.MemberID = strings.TrimSpace(req.MemberID)
	if req.PaymentMethodID == "" {
		http.Error(w, "payment_method_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Memberships) == 0 {
		http.Error(w, "at least one membership is required", http.StatusBadRequest)
		return
	}

	role := r.Header.Get("X-Role")
	callerMemberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	memberID := callerMemberID
	if (role == "staff" || role == "admin") && req.MemberID != "" {
		memberID = req.MemberID
	}
	if memberID == "" {
		http.Error(w, "missing member context", http.StatusBadRequest)
		return
	}
	if role != "staff" && role != "admin" && req.MemberID != "" && req.MemberID != callerMemberID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var membershipIDs []string
	var tiers []string
	for _, m := range req.Memberships {
		id := strings.TrimSpace(m.MembershipID)
		tier := strings.TrimSpace(strings.ToLower(m.Tier))
		if id == "" || tier == "" {
			http.Error(w, "membership_id and tier are required for each membership", http.StatusBadRequest)
			return
		}
		membershipIDs = append(membershipIDs, id)
		tiers = append(tiers, tier)
	}

	amount, err := h.chargeAmountCents(tiers, req.WalkIn)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stripe.Key = h.stripeSecretKey
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.AddMetadata("member_id", memberID)
	params.AddMetadata("membership_ids", strings.Join(membershipIDs, ","))
	if idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key")); idemKey != "" {
		params.IdempotencyKey = stripe.String(idemKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		h.handleChargeError(w, r, err, memberID, membershipIDs, amount)
		return
	}

	now := time.Now().UTC()
	payment := storage.Payment{
		MemberID:              memberID,
		MembershipIDs:         membershipIDs,
		AmountCents:           amount,
		Currency:              "usd",
		Method:                "card",
		StripePaymentIntentID: pi.ID,
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	var paymentID string
	var status string
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		status = storage.PaymentStatusSucceeded
		paymentID, err = h.paySvc.RecordSucceeded(r.Context(), tx, payment, now)
	} else {
		// Intent still settling. The webhook or the reconciler finishes it.
		status = storage.PaymentStatusPending
		payment.Status = storage.PaymentStatusPending
		paymentID, err = h.repo.InsertPayment(r.Context(), tx, payment)
	}
	if err != nil {
		http.Error(w, "failed to persist payment", http.StatusInternalServerError)
		return
	}

	if err := h.recordAudit(r.Context(), tx, r, "billing.payment.charged", "", memberID, map[string]any{
		"payment_id":               paymentID,
		"stripe_payment_intent_id": pi.ID,
		"amount_cents":             amount,
		"status":                   status,
		"membership_ids":           membershipIDs,
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	code := http.StatusCreated
	if status == storage.PaymentStatusPending {
		code = http.StatusAccepted
	}
	writeJSON(w, code, map[string]any{
		"payment_id":   paymentID,
		"status":       status,
		"amount_cents": amount,
		"amount":       pricing.FormatAmount(amount),
	})
}

func (h *Handler) chargeAmountCents(tiers []string, walkIn *chargeWalkIn) (int64, error) {
	if walkIn != nil {
		if len(tiers) != 1 || tiers[0] != pricing.TierWalkIn {
			return 0, errors.New("walk_in inputs require exactly one walk-in membership")
		}
		version := walkIn.SchemaVersion
		if version == 0 {
			version = 2
		}
		return pricing.WalkInTotalCents(pricing.WalkInInputs{
			SchemaVersion:       version,
			NumAdults:           walkIn.NumAdults,
			NumChildren:         walkIn.NumChildren,
			NumHours:            walkIn.NumHours,
			NumParticipants:     walkIn.NumParticipants,
			NumNonParticipating: walkIn.NumNonParticipating,
		})
	}
	return pricing.RegistrationTotalCents(tiers)
}

// handleChargeError maps Stripe failures: card declines become 402 with the
// provider's message passed through verbatim, everything else is a gateway
// problem. Declines are recorded so staff can see why a membership is still
// pending.
func (h *Handler) handleChargeError(w http.ResponseWriter, r *http.Request, err error, memberID string, membershipIDs []string, amount int64) {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		h.logger.Error("stripe payment intent create failed", "err", err)
		http.Error(w, "payment provider unavailable", http.StatusBadGateway)
		return
	}
	if stripeErr.Type != stripe.ErrorTypeCard {
		h.logger.Error("stripe payment intent create failed", "err", err, "stripe_error_type", string(stripeErr.Type))
		http.Error(w, "payment provider unavailable", http.StatusBadGateway)
		return
	}

	h.logger.Info("card payment declined",
		"member_id", memberID,
		"decline_code", stripeErr.DeclineCode,
		"stripe_error_code", string(stripeErr.Code),
	)

	intentID := ""
	if stripeErr.PaymentIntent != nil {
		intentID = stripeErr.PaymentIntent.ID
	}
	tx, txErr := h.repo.Begin(r.Context())
	if txErr == nil {
		defer func() { _ = tx.Rollback(r.Context()) }()
		paymentID, insErr := h.repo.InsertPayment(r.Context(), tx, storage.Payment{
			MemberID:              memberID,
			MembershipIDs:         membershipIDs,
			AmountCents:           amount,
			Currency:              "usd",
			Method:                "card",
			Status:                storage.PaymentStatusFailed,
			StripePaymentIntentID: intentID,
			FailureMessage:        stripeErr.Msg,
		})
		if insErr == nil {
			_ = h.recordAudit(r.Context(), tx, r, "billing.payment.declined", "", memberID, map[string]any{
				"payment_id":   paymentID,
				"amount_cents": amount,
				"decline_code": stripeErr.DeclineCode,
			})
			_ = tx.Commit(r.Context())
		}
	}

	http.Error(w, stripeErr.Msg, http.StatusPaymentRequired)
}

// Payments lists a member's payment history, newest first.
func (h *Handler) Payments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	memberID := strings.TrimSpace(r.URL.Query().Get("member_id"))
	if memberID == "" {
		memberID = strings.TrimSpace(r.Header.Get("X-Member-Id"))
	}
	if memberID == "" {
		http.Error(w, "member_id is required", http.StatusBadRequest)
		return
	}

	role := r.Header.Get("X-Role")
	callerMemberID := r.Header.Get("X-Member-Id")
	if role != "staff" && role != "admin" && callerMemberID != "" && callerMemberID != memberID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	list, err := h.repo.ListPaymentsByMember(r.Context(), memberID, 50)
	if err != nil {
		http.Error(w, "failed to load payments", http.StatusInternalServerError)
		return
	}

	views := make([]map[string]any, 0, len(list))
	for _, p := range list {
		v := map[string]any{
			"payment_id":     p.ID,
			"membership_ids": p.MembershipIDs,
			"amount_cents":   p.AmountCents,
			"amount":         pricing.FormatAmount(p.AmountCents),
			"method":         p.Method,
			"status":         p.Status,
			"created_at":     p.CreatedAt.UTC().Format(time.RFC3339),
		}
		if p.FailureMessage != "" {
			v["failure_message"] = p.FailureMessage
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member_id": memberID,
		"payments":  views,
	})
}

type quoteRequest struct {
	Tiers  []string      `json:"tiers,omitempty"`
	WalkIn *chargeWalkIn `json:"walk_in,omitempty"`
}

// Quote prices a registration or walk-in without charging anything. The
// member service uses the gRPC variant of this; the HTTP form serves the
// front desk UI.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	var amount int64
	var err error
	switch {
	case req.WalkIn != nil:
		version := req.WalkIn.SchemaVersion
		if version == 0 {
			version = 2
		}
		amount, err = pricing.WalkInTotalCents(pricing.WalkInInputs{
			SchemaVersion:       version,
			NumAdults:           req.WalkIn.NumAdults,
			NumChildren:         req.WalkIn.NumChildren,
			NumHours:            req.WalkIn.NumHours,
			NumParticipants:     req.WalkIn.NumParticipants,
			NumNonParticipating: req.WalkIn.NumNonParticipating,
		})
	case len(req.Tiers) > 0:
		amount, err = pricing.RegistrationTotalCents(req.Tiers)
	default:
		http.Error(w, "tiers or walk_in is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"amount_cents": amount,
		"amount":       pricing.FormatAmount(amount),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) recordAudit(ctx context.Context, tx pgx.Tx, r *http.Request, eventType string, actorType string, memberID string, metadata map[string]any) error {
	if actorType == "" {
		actorType = strings.TrimSpace(r.Header.Get("X-Role"))
	}
	if actorType == "" {
		actorType = "system"
	}
	actorID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if actorID == "" {
		actorID = strings.TrimSpace(r.Header.Get("X-Member-Id"))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if reqID := strings.TrimSpace(r.Header.Get("X-Request-Id")); reqID != "" {
		metadata["request_id"] = reqID
	}
	raw, _ := json.Marshal(metadata)
	return h.repo.InsertAuditEvent(ctx, tx, storage.AuditEvent{
		EventType: eventType,
		ActorType: actorType,
		ActorID:   actorID,
		MemberID:  memberID,
		Metadata:  raw,
	})
}
