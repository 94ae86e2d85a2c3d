package model

import "time"

type Member struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Address   string
	PhotoURL  string
	CreatedAt time.Time
}

type FamilyMember struct {
	ID        string
	MemberID  string
	Name      string
	CreatedAt time.Time
}

type AssignedDay struct {
	Day           time.Time
	AssignedHours int
}

type VisitedDay struct {
	Day       time.Time
	StartTime time.Time
}

// Membership is one tier grant for a primary member or one of their family
// members. FamilyMemberID is empty for the primary's own membership.
type Membership struct {
	ID                  string
	MemberID            string
	FamilyMemberID      string
	Tier                string
	CreatedAt           time.Time
	Expiry              *time.Time
	InitialHours        int
	NumAdults           int
	NumChildren         int
	NumHours            int
	NumParticipants     int
	NumNonParticipating int
	PaymentStatus       string
	AssignedDays        []AssignedDay
	VisitedDays         []VisitedDay
	SessionStart        *time.Time
	SessionMaxHours     *int
}

const (
	PaymentStatusActive  = "active"
	PaymentStatusPending = "pending"
	PaymentStatusExpired = "expired"
)
