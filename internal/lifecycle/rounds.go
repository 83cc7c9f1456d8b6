package lifecycle

import (
	"context"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/calculator"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// InitializeRound opens g.CurrentRound: one PENDING obligation per active
// member and, when the rotation still has a candidate, a PENDING payout
// scheduled for that candidate. It only runs inside the caller's
// transaction.
func (m *Manager) InitializeRound(ctx context.Context, tx storage.Tx, g *models.Group, actor models.Actor) error {
	round := g.CurrentRound
	memberships, err := tx.ListMemberships(ctx, g.ID)
	if err != nil {
		return err
	}
	active := models.ActiveMembers(memberships)

	payload := audit.RoundInitialized{Round: round}
	for _, ms := range active {
		existing, err := tx.FindContribution(ctx, g.ID, ms.UserID, round)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		c := &models.Contribution{
			GroupID:     g.ID,
			MemberID:    ms.UserID,
			RoundNumber: round,
			Amount:      g.ContributionAmount,
			Status:      models.ContributionPending,
		}
		if err := tx.InsertContribution(ctx, c); err != nil {
			return err
		}
		payload.ContributionIDs = append(payload.ContributionIDs, c.ID)
	}

	scheduled, err := tx.FindRoundPayout(ctx, g.ID, round)
	if err != nil {
		return err
	}
	if scheduled == nil {
		payouts, err := tx.ListPayouts(ctx, g.ID)
		if err != nil {
			return err
		}
		// No candidate is not an error here; execution reports it.
		if next := calculator.NextRecipient(memberships, payouts, round); next != nil {
			p := &models.Payout{
				GroupID:         g.ID,
				RoundNumber:     round,
				RecipientUserID: next.UserID,
				Amount:          calculator.PayoutAmount(g.ContributionAmount, len(active)),
				Status:          models.PayoutPending,
			}
			if err := tx.InsertPayout(ctx, p); err != nil {
				return err
			}
			payload.ScheduledPayoutID = p.ID
			payload.ScheduledTo = p.RecipientUserID
		}
	}

	_, err = m.recorder.Append(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     models.ActionRoundInitialized,
		EntityType: models.EntityGroup,
		EntityID:   g.ID,
		GroupID:    g.ID,
		Payload:    payload,
	})
	return err
}

// Advance closes g.CurrentRound. After the final round the group becomes
// COMPLETED with CurrentRound = TotalRounds+1 and completed is true;
// otherwise the next round is initialized. The caller appends the closing
// audit events.
func (m *Manager) Advance(ctx context.Context, tx storage.Tx, g *models.Group, actor models.Actor) (completed bool, err error) {
	if g.FinalRound() {
		g.Status = models.GroupCompleted
		g.CurrentRound = g.TotalRounds + 1
		return true, tx.UpdateGroupState(ctx, g)
	}

	g.CurrentRound++
	if err := tx.UpdateGroupState(ctx, g); err != nil {
		return false, err
	}
	return false, m.InitializeRound(ctx, tx, g, actor)
}
