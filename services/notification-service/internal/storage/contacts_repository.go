package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/legacy-hub/legacyhub/libs/db"
)

// Contact is the local projection of who to reach for a member. It is fed
// from account-created events so activation and payment events, which carry
// no contact details themselves, can still be delivered.
type Contact struct {
	MemberID string
	Name     string
	Email    string
	Phone    string
}

type ContactsRepository struct {
	pool *db.Pool
}

func NewContactsRepository(pool *db.Pool) *ContactsRepository {
	return &ContactsRepository{pool: pool}
}

func (r *ContactsRepository) Upsert(ctx context.Context, c Contact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO contacts (member_id, name, email, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (member_id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone, updated_at = now()
	`, c.MemberID, c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone))
	return err
}

// Get returns (contact, false, nil) when no contact is known for the member.
func (r *ContactsRepository) Get(ctx context.Context, memberID string) (Contact, bool, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT member_id, name, COALESCE(email, ''), COALESCE(phone, '')
		FROM contacts
		WHERE member_id = $1
	`, memberID).Scan(&c.MemberID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, false, nil
	}
	if err != nil {
		return Contact{}, false, err
	}
	return c, true, nil
}
