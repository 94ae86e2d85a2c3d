package storage

import (
	"context"
	"encoding/json"

	"github.com/legacy-hub/legacyhub/libs/db"
)

type Notification struct {
	MemberID     string
	MembershipID string
	EventType    string
	Channel      string
	Recipient    string
	Payload      map[string]any
	Status       string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notifications (member_id, membership_id, event_type, channel, recipient, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, nullIfEmpty(n.MemberID), nullIfEmpty(n.MembershipID), n.EventType, n.Channel, n.Recipient, payload, n.Status)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
