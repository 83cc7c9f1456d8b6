package reconcile

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/calculator"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// GlobalMetrics aggregates ledger volume across all groups.
type GlobalMetrics struct {
	ContributionCount  int              `json:"contributionCount"`
	ContributionVolume decimal.Decimal  `json:"contributionVolume"`
	PayoutCount        int              `json:"payoutCount"`
	PayoutVolume       decimal.Decimal  `json:"payoutVolume"`
	ActiveGroups       int              `json:"activeGroups"`
	CompletedGroups    int              `json:"completedGroups"`
	Integrity          *IntegrityReport `json:"integrity"`
	Degraded           bool             `json:"degraded"`
}

// GlobalMetrics computes the aggregates and embeds a fresh IntegrityCheck.
func (e *Engine) GlobalMetrics(ctx context.Context) (*GlobalMetrics, error) {
	out := &GlobalMetrics{}
	err := e.store.View(ctx, func(r storage.Reader) error {
		contributions, err := r.ListContributionsByStatus(ctx, models.ContributionConfirmed, models.ContributionSettled)
		if err != nil {
			return err
		}
		tally := calculator.TallyContributions(contributions)
		out.ContributionCount = tally.Count
		out.ContributionVolume = tally.Sum

		payouts, err := r.ListPayoutsByStatus(ctx, models.PayoutExecuted, models.PayoutCompleted)
		if err != nil {
			return err
		}
		out.PayoutVolume = decimal.Zero
		for _, p := range payouts {
			out.PayoutCount++
			out.PayoutVolume = out.PayoutVolume.Add(p.Amount)
		}

		groups, err := r.ListGroups(ctx)
		if err != nil {
			return err
		}
		for _, g := range groups {
			switch g.Status {
			case models.GroupActive:
				out.ActiveGroups++
			case models.GroupCompleted:
				out.CompletedGroups++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out.Integrity, err = e.IntegrityCheck(ctx)
	if err != nil {
		return nil, err
	}
	out.Degraded = !out.Integrity.Healthy() || (e.status != nil && e.status.IsDegraded())
	return out, nil
}
