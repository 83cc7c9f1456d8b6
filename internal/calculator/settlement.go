package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/models"
)

// PayoutAmount is the pooled amount for one round.
func PayoutAmount(contribution decimal.Decimal, memberCount int) decimal.Decimal {
	return contribution.Mul(decimal.NewFromInt(int64(memberCount)))
}

// Tally is the count and exact sum of a set of contributions.
type Tally struct {
	Count int
	Sum   decimal.Decimal
}

// TallyContributions sums the contributions whose status is one of statuses.
// With no statuses every row is counted.
func TallyContributions(contributions []*models.Contribution, statuses ...models.ContributionStatus) Tally {
	t := Tally{Sum: decimal.Zero}
	for _, c := range contributions {
		if len(statuses) > 0 && !hasStatus(c.Status, statuses) {
			continue
		}
		t.Count++
		t.Sum = t.Sum.Add(c.Amount)
	}
	return t
}

func hasStatus(s models.ContributionStatus, statuses []models.ContributionStatus) bool {
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

// Reconcile checks that settled contributions account for a payout exactly.
// It returns a *models.ReconciliationError describing the first mismatch.
func Reconcile(settled Tally, memberCount int, payoutAmount decimal.Decimal) error {
	if settled.Count == memberCount && settled.Sum.Equal(payoutAmount) {
		return nil
	}
	msg := "settled contributions do not match payout"
	if settled.Count != memberCount {
		msg = "settled contribution count does not match member count"
	}
	return &models.ReconciliationError{
		Message:        msg,
		ExpectedCount:  memberCount,
		ActualCount:    settled.Count,
		ExpectedAmount: payoutAmount,
		ActualAmount:   settled.Sum,
	}
}

// ConfirmedFrom returns the CONFIRMED contributions owned by the given
// active memberships.
func ConfirmedFrom(contributions []*models.Contribution, active []*models.Membership) []*models.Contribution {
	owners := make(map[string]bool, len(active))
	for _, m := range active {
		owners[m.UserID] = true
	}
	var out []*models.Contribution
	for _, c := range contributions {
		if c.Status == models.ContributionConfirmed && owners[c.MemberID] {
			out = append(out, c)
		}
	}
	return out
}
