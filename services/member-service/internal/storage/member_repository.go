package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/legacy-hub/legacyhub/libs/db"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
)

type MemberRepository struct {
	pool *db.Pool
}

func NewMemberRepository(pool *db.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

func (r *MemberRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *MemberRepository) Create(ctx context.Context, tx pgx.Tx, m *model.Member) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO members (name, email, phone, address, photo_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, m.Name, m.Email, m.Phone, m.Address, m.PhotoURL).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateWithID inserts a member whose id was minted elsewhere (the auth
// service assigns member ids at registration). Replayed events hit the
// ON CONFLICT arm and change nothing.
func (r *MemberRepository) CreateWithID(ctx context.Context, tx pgx.Tx, id string, m *model.Member) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO members (id, name, email, phone, address, photo_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, id, m.Name, m.Email, m.Phone, m.Address, m.PhotoURL)
	return err
}

func (r *MemberRepository) GetByPhone(ctx context.Context, phone string) (model.Member, error) {
	return r.getOne(ctx, `WHERE phone = $1`, phone)
}

func (r *MemberRepository) GetByID(ctx context.Context, id string) (model.Member, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *MemberRepository) GetByEmail(ctx context.Context, email string) (model.Member, error) {
	return r.getOne(ctx, `WHERE email = $1`, email)
}

func (r *MemberRepository) getOne(ctx context.Context, where string, arg any) (model.Member, error) {
	var m model.Member
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(email, ''), phone, COALESCE(address, ''), COALESCE(photo_url, ''), created_at
		FROM members
	`+where, arg).Scan(&m.ID, &m.Name, &m.Email, &m.Phone, &m.Address, &m.PhotoURL, &m.CreatedAt)
	if err != nil {
		return model.Member{}, err
	}
	return m, nil
}

func (r *MemberRepository) UpdateProfile(ctx context.Context, id, address, photoURL string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE members
		SET address = COALESCE(NULLIF($2, ''), address),
			photo_url = COALESCE(NULLIF($3, ''), photo_url),
			updated_at = now()
		WHERE id = $1
	`, id, address, photoURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *MemberRepository) ListFamily(ctx context.Context, memberID string) ([]model.FamilyMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, member_id, name, created_at
		FROM family_members
		WHERE member_id = $1
		ORDER BY created_at ASC
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var family []model.FamilyMember
	for rows.Next() {
		var fm model.FamilyMember
		if err := rows.Scan(&fm.ID, &fm.MemberID, &fm.Name, &fm.CreatedAt); err != nil {
			return nil, err
		}
		family = append(family, fm)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return family, nil
}

func (r *MemberRepository) CreateFamilyMember(ctx context.Context, tx pgx.Tx, fm *model.FamilyMember) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO family_members (member_id, name)
		VALUES ($1, $2)
		RETURNING id
	`, fm.MemberID, fm.Name).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes a member and, through FK cascades, their family members,
// memberships and day ledgers.
func (r *MemberRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
