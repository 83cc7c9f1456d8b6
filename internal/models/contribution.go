package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributionStatus tracks a contribution through review and settlement.
type ContributionStatus string

const (
	ContributionPending   ContributionStatus = "PENDING"
	ContributionConfirmed ContributionStatus = "CONFIRMED"
	ContributionRejected  ContributionStatus = "REJECTED"
	ContributionSettled   ContributionStatus = "SETTLED"
)

// Contribution is one member's payment for one round.
// (GroupID, MemberID, RoundNumber) is unique; rows are never deleted.
type Contribution struct {
	ID          string
	GroupID     string
	MemberID    string
	RoundNumber int

	// Amount equals the group's ContributionAmount at creation time.
	Amount decimal.Decimal

	Status ContributionStatus

	// SubmittedAt is nil for obligations created by round initialization
	// until the member records the payment.
	SubmittedAt *time.Time

	// ReviewedBy is the ADMIN or COLLECTOR who confirmed or rejected the row.
	ReviewedBy   string
	RejectReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Submitted reports whether the member has recorded this payment.
func (c *Contribution) Submitted() bool {
	return c.SubmittedAt != nil
}

// RoundSummary aggregates the contributions of one round.
type RoundSummary struct {
	GroupID     string
	RoundNumber int

	Pending   int
	Confirmed int
	Rejected  int
	Settled   int

	// Expected is the number of active members owing a contribution.
	Expected int

	// Collected sums CONFIRMED and SETTLED amounts.
	Collected decimal.Decimal
}
