// Package payout executes round payouts: recipient rotation, funding and
// settlement, reconciliation, and round advancement.
package payout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/calculator"
	"github.com/mmynk/equb/internal/metrics"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/rules"
	"github.com/mmynk/equb/internal/storage"
)

// Rounds advances a group once its round is paid out.
// *lifecycle.Manager implements it.
type Rounds interface {
	Advance(ctx context.Context, tx storage.Tx, g *models.Group, actor models.Actor) (completed bool, err error)
	DefersAdvance() bool
}

// Engine executes payouts.
type Engine struct {
	store    storage.Store
	rounds   Rounds
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine. recorder, m and logger may be nil.
func NewEngine(store storage.Store, rounds Rounds, recorder *audit.Recorder, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(logger)
	}
	return &Engine{
		store:    store,
		rounds:   rounds,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Result describes an executed payout.
type Result struct {
	Payout *models.Payout

	// Group is the state after the round was closed.
	Group *models.Group

	SettledCount int
	Completed    bool
}

// Execute pays out the current round of groupID.
//
// Everything runs in one transaction. If the settled contributions do not
// reconcile with the payout the transaction is rolled back, a
// PAYOUT_REJECTED event is written on its own, and the
// *models.ReconciliationError is returned.
func (e *Engine) Execute(ctx context.Context, actor models.Actor, groupID string) (*Result, error) {
	if !actor.Is(models.RoleAdmin, models.RoleCollector) {
		return nil, models.ErrForbidden("executing payouts requires ADMIN or COLLECTOR, actor %s is %s", actor.ID, actor.Role)
	}

	var result Result
	var round int
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if err := rules.AssertCanExecutePayout(group); err != nil {
			return err
		}
		if err := assertCollector(ctx, tx, actor, groupID); err != nil {
			return err
		}
		round = group.CurrentRound

		rp, err := plan(ctx, tx, group)
		if err != nil {
			return err
		}
		if rp.existing != nil && rp.existing.Status.Executed() {
			return models.ErrConflict("round %d of group %s was already paid out", round, groupID)
		}
		if err := rp.funded(); err != nil {
			return err
		}
		if rp.recipient == nil {
			return models.ErrConflict("no eligible recipients for round %d of group %s", round, groupID)
		}

		now := e.now()
		p := rp.existing
		if p == nil {
			p = &models.Payout{GroupID: groupID, RoundNumber: round}
		}
		p.RecipientUserID = rp.recipient.UserID
		p.Amount = rp.amount
		p.Status = models.PayoutExecuted
		p.ExecutedAt = &now
		p.ExecutedBy = actor.ID
		if rp.existing != nil {
			err = tx.ExecuteScheduledPayout(ctx, p)
		} else {
			err = tx.InsertPayout(ctx, p)
		}
		if err != nil {
			return err
		}

		ids := make([]string, len(rp.confirmed))
		for i, c := range rp.confirmed {
			ids[i] = c.ID
		}
		if _, err := tx.SettleContributions(ctx, ids); err != nil {
			return err
		}

		after, err := tx.ListRoundContributions(ctx, groupID, round)
		if err != nil {
			return err
		}
		settled := calculator.TallyContributions(after, models.ContributionSettled)
		if err := calculator.Reconcile(settled, len(rp.active), p.Amount); err != nil {
			return err
		}

		if _, err := e.recorder.Append(ctx, tx, audit.Entry{
			Actor:         actor,
			Action:        models.ActionPayoutCompleted,
			EntityType:    models.EntityPayout,
			EntityID:      p.ID,
			GroupID:       groupID,
			SubjectUserID: p.RecipientUserID,
			Payload: audit.PayoutCompleted{
				Round:            round,
				RecipientUserID:  p.RecipientUserID,
				PayoutAmount:     p.Amount,
				TotalContributed: settled.Sum,
				MemberCount:      len(rp.active),
				SettledCount:     settled.Count,
				SettledIDs:       ids,
			},
		}); err != nil {
			return err
		}

		completed := false
		if !e.rounds.DefersAdvance() {
			completed, err = e.rounds.Advance(ctx, tx, group, actor)
			if err != nil {
				return err
			}
		}
		if _, err := e.recorder.Append(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     models.ActionRoundClosed,
			EntityType: models.EntityGroup,
			EntityID:   groupID,
			GroupID:    groupID,
			Payload:    audit.RoundClosed{Round: round, CurrentRound: group.CurrentRound, Status: group.Status},
		}); err != nil {
			return err
		}
		if completed {
			if _, err := e.recorder.Append(ctx, tx, audit.Entry{
				Actor:      actor,
				Action:     models.ActionGroupCompleted,
				EntityType: models.EntityGroup,
				EntityID:   groupID,
				GroupID:    groupID,
				Payload: audit.GroupTransition{
					From:         models.GroupActive,
					To:           models.GroupCompleted,
					CurrentRound: group.CurrentRound,
				},
			}); err != nil {
				return err
			}
		}

		result = Result{Payout: p, Group: group, SettledCount: settled.Count, Completed: completed}
		return nil
	})

	var rec *models.ReconciliationError
	if errors.As(err, &rec) {
		e.reject(ctx, actor, groupID, round, rec)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	e.metrics.PayoutExecuted(result.Payout.Amount)
	if result.Completed {
		e.metrics.GroupTransition(string(models.GroupCompleted))
	}
	e.logger.Info("Payout executed",
		"group_id", groupID,
		"round", round,
		"recipient", result.Payout.RecipientUserID,
		"amount", result.Payout.Amount.String(),
		"completed", result.Completed,
	)
	return &result, nil
}

// reject records a reconciliation failure after its transaction rolled back.
func (e *Engine) reject(ctx context.Context, actor models.Actor, groupID string, round int, rec *models.ReconciliationError) {
	e.metrics.ReconciliationFailed()
	e.logger.Error("Payout reconciliation failed",
		"group_id", groupID,
		"round", round,
		"expected_count", rec.ExpectedCount,
		"actual_count", rec.ActualCount,
		"expected_amount", rec.ExpectedAmount.String(),
		"actual_amount", rec.ActualAmount.String(),
	)

	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		_, err := e.recorder.Append(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     models.ActionPayoutRejected,
			EntityType: models.EntityGroup,
			EntityID:   groupID,
			GroupID:    groupID,
			Payload: audit.PayoutRejected{
				Round:          round,
				Reason:         rec.Message,
				ExpectedCount:  rec.ExpectedCount,
				ActualCount:    rec.ActualCount,
				ExpectedAmount: rec.ExpectedAmount,
				ActualAmount:   rec.ActualAmount,
			},
		})
		return err
	})
	if err != nil {
		e.logger.Error("Failed to record payout rejection", "critical", true, "group_id", groupID, "error", err)
	}
}

// assertCollector requires COLLECTOR actors to be assigned to the group.
func assertCollector(ctx context.Context, r storage.Reader, actor models.Actor, groupID string) error {
	if actor.Role != models.RoleCollector {
		return nil
	}
	ms, err := r.GetMembership(ctx, groupID, actor.ID)
	var nf *models.NotFoundError
	if errors.As(err, &nf) {
		return models.ErrForbidden("collector %s is not assigned to group %s", actor.ID, groupID)
	}
	if err != nil {
		return err
	}
	if ms.Role != models.RoleCollector || ms.Status != models.MembershipActive {
		return models.ErrForbidden("collector %s is not an active collector of group %s", actor.ID, groupID)
	}
	return nil
}
