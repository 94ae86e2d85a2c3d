package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/legacy-hub/legacyhub/libs/db"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/model"
	"github.com/legacy-hub/legacyhub/services/member-service/internal/session"
)

type MembershipRepository struct {
	pool *db.Pool
}

// WalkInRecord is one row of the admin walk-in listing.
type WalkInRecord struct {
	MembershipID        string
	MemberName          string
	MemberPhone         string
	Day                 time.Time
	NumHours            int
	NumParticipants     int
	NumNonParticipating int
	PaymentStatus       string
	CreatedAt           time.Time
}

func NewMembershipRepository(pool *db.Pool) *MembershipRepository {
	return &MembershipRepository{pool: pool}
}

func (r *MembershipRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const membershipColumns = `
	id, member_id, COALESCE(family_member_id::text, ''), tier, created_at, expiry,
	initial_hours, num_adults, num_children, num_hours, num_participants,
	num_non_participating, payment_status, session_start, session_max_hours`

func scanMembership(row pgx.Row) (model.Membership, error) {
	var ms model.Membership
	err := row.Scan(
		&ms.ID,
		&ms.MemberID,
		&ms.FamilyMemberID,
		&ms.Tier,
		&ms.CreatedAt,
		&ms.Expiry,
		&ms.InitialHours,
		&ms.NumAdults,
		&ms.NumChildren,
		&ms.NumHours,
		&ms.NumParticipants,
		&ms.NumNonParticipating,
		&ms.PaymentStatus,
		&ms.SessionStart,
		&ms.SessionMaxHours,
	)
	if err != nil {
		return model.Membership{}, err
	}
	return ms, nil
}

func (r *MembershipRepository) Create(ctx context.Context, tx pgx.Tx, ms *model.Membership) (string, error) {
	var familyID any
	if ms.FamilyMemberID != "" {
		familyID = ms.FamilyMemberID
	}
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO memberships
			(member_id, family_member_id, tier, expiry, initial_hours,
			num_adults, num_children, num_hours, num_participants, num_non_participating, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, ms.MemberID, familyID, ms.Tier, ms.Expiry, ms.InitialHours,
		ms.NumAdults, ms.NumChildren, ms.NumHours, ms.NumParticipants, ms.NumNonParticipating,
		ms.PaymentStatus).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListByMember returns every membership owned by the member or one of their
// family members, with day ledgers loaded, oldest first.
func (r *MembershipRepository) ListByMember(ctx context.Context, memberID string) ([]model.Membership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+membershipColumns+`
		FROM memberships
		WHERE member_id = $1
		ORDER BY created_at ASC
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []model.Membership
	for rows.Next() {
		ms, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, ms)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range memberships {
		if err := r.loadLedgers(ctx, &memberships[i]); err != nil {
			return nil, err
		}
	}
	return memberships, nil
}

func (r *MembershipRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Membership, error) {
	ms, err := scanMembership(tx.QueryRow(ctx, `
		SELECT`+membershipColumns+`
		FROM memberships
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Membership{}, err
	}
	if err := r.loadLedgersTx(ctx, tx, &ms); err != nil {
		return model.Membership{}, err
	}
	return ms, nil
}

func (r *MembershipRepository) loadLedgers(ctx context.Context, ms *model.Membership) error {
	return r.loadLedgersQ(ctx, r.pool, ms)
}

func (r *MembershipRepository) loadLedgersTx(ctx context.Context, tx pgx.Tx, ms *model.Membership) error {
	return r.loadLedgersQ(ctx, tx, ms)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *MembershipRepository) loadLedgersQ(ctx context.Context, q querier, ms *model.Membership) error {
	if err := r.loadAssigned(ctx, q, ms); err != nil {
		return err
	}
	return r.loadVisited(ctx, q, ms)
}

func (r *MembershipRepository) loadAssigned(ctx context.Context, q querier, ms *model.Membership) error {
	rows, err := q.Query(ctx, `
		SELECT day, assigned_hours
		FROM assigned_days
		WHERE membership_id = $1
		ORDER BY day ASC
	`, ms.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	ms.AssignedDays = nil
	for rows.Next() {
		var a model.AssignedDay
		if err := rows.Scan(&a.Day, &a.AssignedHours); err != nil {
			return err
		}
		ms.AssignedDays = append(ms.AssignedDays, a)
	}
	return rows.Err()
}

func (r *MembershipRepository) loadVisited(ctx context.Context, q querier, ms *model.Membership) error {
	rows, err := q.Query(ctx, `
		SELECT day, start_time
		FROM visited_days
		WHERE membership_id = $1
		ORDER BY seq ASC
	`, ms.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	ms.VisitedDays = nil
	for rows.Next() {
		var v model.VisitedDay
		if err := rows.Scan(&v.Day, &v.StartTime); err != nil {
			return err
		}
		ms.VisitedDays = append(ms.VisitedDays, v)
	}
	return rows.Err()
}

// AssignHours books hours onto a day. Booking the same day again accumulates
// into the existing row; the (membership_id, day) pair stays unique.
func (r *MembershipRepository) AssignHours(ctx context.Context, tx pgx.Tx, membershipID string, day time.Time, hours int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO assigned_days (membership_id, day, assigned_hours)
		VALUES ($1, $2, $3)
		ON CONFLICT (membership_id, day)
		DO UPDATE SET assigned_hours = assigned_days.assigned_hours + EXCLUDED.assigned_hours
	`, membershipID, day, hours)
	return err
}

// RemoveAssignment deletes the whole day entry.
func (r *MembershipRepository) RemoveAssignment(ctx context.Context, tx pgx.Tx, membershipID string, day time.Time) error {
	tag, err := tx.Exec(ctx, `
		DELETE FROM assigned_days
		WHERE membership_id = $1 AND day = $2
	`, membershipID, day)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AppendVisit records a check-in. visited_days is append-only; seq preserves
// insertion order.
func (r *MembershipRepository) AppendVisit(ctx context.Context, tx pgx.Tx, membershipID string, day, startTime time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO visited_days (membership_id, day, start_time)
		VALUES ($1, $2, $3)
	`, membershipID, day, startTime)
	return err
}

func (r *MembershipRepository) StartSession(ctx context.Context, tx pgx.Tx, membershipID string, start time.Time, maxHours *int) error {
	_, err := tx.Exec(ctx, `
		UPDATE memberships
		SET session_start = $2, session_max_hours = $3
		WHERE id = $1
	`, membershipID, start, maxHours)
	return err
}

func (r *MembershipRepository) SetPaymentStatus(ctx context.Context, tx pgx.Tx, membershipID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE memberships
		SET payment_status = $2
		WHERE id = $1
	`, membershipID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *MembershipRepository) ListWalkIns(ctx context.Context, limit int) ([]WalkInRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT ms.id, m.name, m.phone, COALESCE(ms.expiry::date, ms.created_at::date),
			ms.num_hours, ms.num_participants, ms.num_non_participating, ms.payment_status, ms.created_at
		FROM memberships ms
		JOIN members m ON m.id = ms.member_id
		WHERE ms.tier = 'walk-in'
		ORDER BY ms.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []WalkInRecord
	for rows.Next() {
		var w WalkInRecord
		if err := rows.Scan(
			&w.MembershipID,
			&w.MemberName,
			&w.MemberPhone,
			&w.Day,
			&w.NumHours,
			&w.NumParticipants,
			&w.NumNonParticipating,
			&w.PaymentStatus,
			&w.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, w)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// LiveSessions and ClearSession implement the session watcher's store.

func (r *MembershipRepository) LiveSessions(ctx context.Context) ([]session.Live, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_start, session_max_hours
		FROM memberships
		WHERE session_start IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var live []session.Live
	for rows.Next() {
		var s session.Live
		if err := rows.Scan(&s.MembershipID, &s.Start, &s.MaxHours); err != nil {
			return nil, err
		}
		live = append(live, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return live, nil
}

func (r *MembershipRepository) ClearSession(ctx context.Context, membershipID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE memberships
		SET session_start = NULL, session_max_hours = NULL
		WHERE id = $1
	`, membershipID)
	return err
}
