package contribution

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// GetContributions returns a round's contributions visible to actor. ADMIN
// and the group's collectors see every row; members see their own. A zero
// round means the group's current round.
func (l *Ledger) GetContributions(ctx context.Context, actor models.Actor, groupID string, round int) ([]*models.Contribution, error) {
	var out []*models.Contribution
	err := l.store.View(ctx, func(r storage.Reader) error {
		group, err := r.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if round == 0 {
			round = group.CurrentRound
		}
		all, err := r.ListRoundContributions(ctx, groupID, round)
		if err != nil {
			return err
		}
		out, err = scope(ctx, r, actor, groupID, all)
		return err
	})
	return out, err
}

// GetRoundSummary aggregates the contributions actor may see for a round.
func (l *Ledger) GetRoundSummary(ctx context.Context, actor models.Actor, groupID string, round int) (*models.RoundSummary, error) {
	var summary *models.RoundSummary
	err := l.store.View(ctx, func(r storage.Reader) error {
		group, err := r.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if round == 0 {
			round = group.CurrentRound
		}
		all, err := r.ListRoundContributions(ctx, groupID, round)
		if err != nil {
			return err
		}
		visible, err := scope(ctx, r, actor, groupID, all)
		if err != nil {
			return err
		}

		summary = &models.RoundSummary{GroupID: groupID, RoundNumber: round, Collected: decimal.Zero}
		for _, c := range visible {
			switch c.Status {
			case models.ContributionPending:
				summary.Pending++
			case models.ContributionConfirmed:
				summary.Confirmed++
				summary.Collected = summary.Collected.Add(c.Amount)
			case models.ContributionRejected:
				summary.Rejected++
			case models.ContributionSettled:
				summary.Settled++
				summary.Collected = summary.Collected.Add(c.Amount)
			}
		}

		if actor.Role == models.RoleMember {
			summary.Expected = 1
			return nil
		}
		memberships, err := r.ListMemberships(ctx, groupID)
		if err != nil {
			return err
		}
		summary.Expected = len(models.ActiveMembers(memberships))
		return nil
	})
	return summary, err
}

// scope filters contributions down to what actor may read.
func scope(ctx context.Context, r storage.Reader, actor models.Actor, groupID string, all []*models.Contribution) ([]*models.Contribution, error) {
	switch actor.Role {
	case models.RoleAdmin, models.RoleCollector:
		if err := assertStaff(ctx, r, actor, groupID); err != nil {
			return nil, err
		}
		return all, nil
	case models.RoleMember:
		_, err := r.GetMembership(ctx, groupID, actor.ID)
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			return nil, models.ErrForbidden("%s is not a member of group %s", actor.ID, groupID)
		}
		if err != nil {
			return nil, err
		}
		var own []*models.Contribution
		for _, c := range all {
			if c.MemberID == actor.ID {
				own = append(own, c)
			}
		}
		return own, nil
	}
	return nil, models.ErrForbidden("unknown role %q", actor.Role)
}
