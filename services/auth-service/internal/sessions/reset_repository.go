package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/legacy-hub/legacyhub/libs/db"
)

type PasswordReset struct {
	ID        string
	UserID    string
	Hash      string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

type ResetRepository struct {
	pool *db.Pool
}

func NewResetRepository(pool *db.Pool) *ResetRepository {
	return &ResetRepository{pool: pool}
}

func (r *ResetRepository) Create(ctx context.Context, userID string, rawToken string, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	hash := hashToken(rawToken)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`, id, userID, hash, expiresAt)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ResetRepository) GetByHash(ctx context.Context, hash string) (PasswordReset, error) {
	var reset PasswordReset
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, used_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`, hash).Scan(&reset.ID, &reset.UserID, &reset.Hash, &reset.ExpiresAt, &reset.UsedAt)
	if err != nil {
		return PasswordReset{}, err
	}
	return reset, nil
}

func (r *ResetRepository) MarkUsed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE password_reset_tokens
		SET used_at = now()
		WHERE id = $1
	`, id)
	return err
}
