package payout

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/calculator"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// roundPlan is everything Execute and CheckEligibility derive from the
// current round before writing.
type roundPlan struct {
	group     *models.Group
	active    []*models.Membership
	confirmed []*models.Contribution
	// rejected counts REJECTED rows owned by active members. Such a member
	// cannot resubmit for the round.
	rejected  int
	existing  *models.Payout
	recipient *models.Membership
	amount    decimal.Decimal
}

func plan(ctx context.Context, r storage.Reader, g *models.Group) (*roundPlan, error) {
	memberships, err := r.ListMemberships(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	contributions, err := r.ListRoundContributions(ctx, g.ID, g.CurrentRound)
	if err != nil {
		return nil, err
	}
	existing, err := r.FindRoundPayout(ctx, g.ID, g.CurrentRound)
	if err != nil {
		return nil, err
	}
	payouts, err := r.ListPayouts(ctx, g.ID)
	if err != nil {
		return nil, err
	}

	p := &roundPlan{
		group:     g,
		active:    models.ActiveMembers(memberships),
		existing:  existing,
		recipient: calculator.NextRecipient(memberships, payouts, g.CurrentRound),
	}
	p.confirmed = calculator.ConfirmedFrom(contributions, p.active)
	p.amount = calculator.PayoutAmount(g.ContributionAmount, len(p.active))
	active := make(map[string]bool, len(p.active))
	for _, m := range p.active {
		active[m.UserID] = true
	}
	for _, c := range contributions {
		if c.Status == models.ContributionRejected && active[c.MemberID] {
			p.rejected++
		}
	}
	return p, nil
}

// funded requires one CONFIRMED contribution per active member.
func (p *roundPlan) funded() error {
	if len(p.confirmed) != len(p.active) {
		return models.ErrInvalidInput("round %d of group %s is under-funded: %d of %d contributions confirmed",
			p.group.CurrentRound, p.group.ID, len(p.confirmed), len(p.active))
	}
	return nil
}
