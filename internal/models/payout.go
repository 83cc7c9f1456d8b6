package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus tracks a round's payout.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "PENDING"
	PayoutScheduled PayoutStatus = "SCHEDULED"
	PayoutExecuted  PayoutStatus = "EXECUTED"
	PayoutCompleted PayoutStatus = "COMPLETED"
)

// Executed reports whether money has moved for this payout.
func (s PayoutStatus) Executed() bool {
	return s == PayoutExecuted || s == PayoutCompleted
}

// Payout is the pooled amount paid to one recipient for one round.
// (GroupID, RoundNumber) is unique.
type Payout struct {
	ID              string
	GroupID         string
	RoundNumber     int
	RecipientUserID string

	// Amount is ContributionAmount x active member count.
	Amount decimal.Decimal

	Status     PayoutStatus
	ExecutedAt *time.Time
	ExecutedBy string

	CreatedAt time.Time
}
