// Package payments owns payment state transitions and their side effects
// (membership activation events via the outbox). Keeping this out of HTTP
// handlers makes it reusable for the webhook and reconciliation flows.
package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/legacy-hub/legacyhub/services/billing-service/internal/outbox"
	"github.com/legacy-hub/legacyhub/services/billing-service/internal/storage"
)

type Service struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository) *Service {
	return &Service{repo: repo, outboxRepo: outboxRepo}
}

// RecordSucceeded inserts a new payment row in the succeeded state and emits
// one activation event per covered membership. Used for synchronous charges
// (confirmed card intents) where no pending row exists yet.
func (s *Service) RecordSucceeded(ctx context.Context, tx pgx.Tx, p storage.Payment, occurredAt time.Time) (string, error) {
	p.Status = storage.PaymentStatusSucceeded
	id, err := s.repo.InsertPayment(ctx, tx, p)
	if err != nil {
		return "", err
	}
	p.ID = id
	return id, s.emitActivations(ctx, tx, p, occurredAt)
}

// ApplySucceeded flips a pending payment to succeeded, keyed by the Stripe
// payment intent, and emits the activation events. Unknown intents and
// already-succeeded payments are no-ops so webhook retries and the
// reconciler never double-emit.
func (s *Service) ApplySucceeded(ctx context.Context, tx pgx.Tx, intentID string, occurredAt time.Time) error {
	p, ok, err := s.repo.GetPaymentByIntentForUpdate(ctx, tx, intentID)
	if err != nil {
		return err
	}
	if !ok || p.Status == storage.PaymentStatusSucceeded {
		return nil
	}
	if err := s.repo.UpdatePaymentStatus(ctx, tx, p.ID, storage.PaymentStatusSucceeded, ""); err != nil {
		return err
	}
	return s.emitActivations(ctx, tx, p, occurredAt)
}

// ApplyFailed marks a pending payment failed with the provider's message.
// Succeeded payments are never demoted: a late failure event for an intent
// that already succeeded is provider noise.
func (s *Service) ApplyFailed(ctx context.Context, tx pgx.Tx, intentID string, message string, occurredAt time.Time) error {
	p, ok, err := s.repo.GetPaymentByIntentForUpdate(ctx, tx, intentID)
	if err != nil {
		return err
	}
	if !ok || p.Status != storage.PaymentStatusPending {
		return nil
	}
	if err := s.repo.UpdatePaymentStatus(ctx, tx, p.ID, storage.PaymentStatusFailed, message); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"payment_id":      p.ID,
		"member_id":       p.MemberID,
		"membership_ids":  p.MembershipIDs,
		"amount_cents":    p.AmountCents,
		"failure_message": message,
		"failed_at":       occurredAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "payment",
		AggregateID:   p.ID,
		EventType:     "billing.payment.failed.v1",
		Payload:       payload,
	})
}

func (s *Service) emitActivations(ctx context.Context, tx pgx.Tx, p storage.Payment, occurredAt time.Time) error {
	for _, membershipID := range p.MembershipIDs {
		payload, err := json.Marshal(map[string]any{
			"membership_id": membershipID,
			"member_id":     p.MemberID,
			"payment_id":    p.ID,
			"amount_cents":  p.AmountCents,
			"activated_at":  occurredAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := s.outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "membership",
			AggregateID:   membershipID,
			EventType:     "billing.membership.activated.v1",
			Payload:       payload,
		}); err != nil {
			return err
		}
	}
	return nil
}
