package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/legacy-hub/legacyhub/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Payment is one charge against a member, covering one or more memberships
// activated together. membership_ids is stored as a text[] so the activation
// events can be replayed from the row alone.
type Payment struct {
	ID                    string
	MemberID              string
	MembershipIDs         []string
	AmountCents           int64
	Currency              string
	Method                string
	Status                string
	StripePaymentIntentID string
	FailureMessage        string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (r *Repository) InsertPayment(ctx context.Context, tx pgx.Tx, p Payment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO payments (member_id, membership_ids, amount_cents, currency, method, status, stripe_payment_intent_id, failure_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`, p.MemberID, p.MembershipIDs, p.AmountCents, defaultIfEmpty(p.Currency, "usd"), p.Method, p.Status, nullIfEmpty(p.StripePaymentIntentID), nullIfEmpty(p.FailureMessage)).Scan(&id)
	return id, err
}

const paymentColumns = `
	id::text, member_id::text, membership_ids, amount_cents, currency, method, status,
	COALESCE(stripe_payment_intent_id, ''), COALESCE(failure_message, ''), created_at, updated_at
`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.MemberID, &p.MembershipIDs, &p.AmountCents, &p.Currency, &p.Method, &p.Status,
		&p.StripePaymentIntentID, &p.FailureMessage, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) GetPayment(ctx context.Context, id string) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id))
}

func (r *Repository) GetPaymentByIntentForUpdate(ctx context.Context, tx pgx.Tx, intentID string) (Payment, bool, error) {
	p, err := scanPayment(tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE stripe_payment_intent_id = $1
		FOR UPDATE
	`, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, false, nil
		}
		return Payment{}, false, err
	}
	return p, true, nil
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, tx pgx.Tx, id string, status string, failureMessage string) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $2,
		    failure_message = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, status, nullIfEmpty(failureMessage))
	return err
}

func (r *Repository) ListPaymentsByMember(ctx context.Context, memberID string, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE member_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPendingCardPaymentsForReconcile returns card payments stuck in pending,
// oldest first, so the reconciler can ask Stripe how they really ended.
func (r *Repository) ListPendingCardPaymentsForReconcile(ctx context.Context, olderThan time.Duration, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = 'pending'
		  AND method = 'card'
		  AND stripe_payment_intent_id IS NOT NULL
		  AND created_at < now() - $1::interval
		ORDER BY created_at ASC
		LIMIT $2
	`, olderThan.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

func (r *Repository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		// keep raw JSON error as a hard failure: webhook should be well-formed.
		return err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

type AuditEvent struct {
	EventType string
	ActorType string
	ActorID   string
	MemberID  string
	Metadata  []byte
}

func (r *Repository) InsertAuditEvent(ctx context.Context, tx pgx.Tx, evt AuditEvent) error {
	var payload any
	if len(evt.Metadata) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(evt.Metadata, &payload); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_type, actor_id, member_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, evt.EventType, evt.ActorType, nullIfEmpty(evt.ActorID), nullIfEmpty(evt.MemberID), payload)
	return err
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func defaultIfEmpty(s string, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
