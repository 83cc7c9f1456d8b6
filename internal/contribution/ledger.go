// Package contribution records member payments into rounds and reviews them.
package contribution

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/metrics"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/rules"
	"github.com/mmynk/equb/internal/storage"
)

// Ledger implements contribution recording, review, and scoped reads.
type Ledger struct {
	store    storage.Store
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewLedger creates a Ledger. recorder, m and logger may be nil.
func NewLedger(store storage.Store, recorder *audit.Recorder, m *metrics.Metrics, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(logger)
	}
	return &Ledger{store: store, recorder: recorder, metrics: m, logger: logger}
}

// Recorded is the result of Record.
type Recorded struct {
	Contribution *models.Contribution

	// ConfirmedCount is the number of CONFIRMED contributions in the round
	// after this submission.
	ConfirmedCount int
}

// Record submits the actor's payment for round.
//
// Round initialization leaves an unsubmitted PENDING obligation per member;
// Record stamps it. A member without an obligation (reinstated mid-round)
// gets a new PENDING row. Either way a second submission is a Conflict.
func (l *Ledger) Record(ctx context.Context, actor models.Actor, groupID string, round int, amount decimal.Decimal) (*Recorded, error) {
	if actor.Role != models.RoleMember {
		return nil, models.ErrForbidden("only members record contributions, actor %s is %s", actor.ID, actor.Role)
	}

	var result Recorded
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if err := rules.AssertCanContribute(group); err != nil {
			return err
		}

		ms, err := tx.GetMembership(ctx, groupID, actor.ID)
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			return models.ErrForbidden("%s is not a member of group %s", actor.ID, groupID)
		}
		if err != nil {
			return err
		}
		if !ms.ActiveMember() {
			return models.ErrForbidden("membership of %s in group %s is %s %s", actor.ID, groupID, ms.Status, ms.Role)
		}

		if round != group.CurrentRound {
			return models.ErrStateViolation("round %d is not the current round %d of group %s", round, group.CurrentRound, groupID)
		}
		if !amount.Equal(group.ContributionAmount) {
			return models.ErrInvalidInput("amount %s must equal the contribution amount %s", amount, group.ContributionAmount)
		}

		c, err := tx.FindContribution(ctx, groupID, actor.ID, round)
		if err != nil {
			return err
		}
		switch {
		case c == nil:
			now := time.Now().UTC()
			c = &models.Contribution{
				GroupID:     groupID,
				MemberID:    actor.ID,
				RoundNumber: round,
				Amount:      group.ContributionAmount,
				Status:      models.ContributionPending,
				SubmittedAt: &now,
			}
			if err := tx.InsertContribution(ctx, c); err != nil {
				return err
			}
		case c.Submitted() || c.Status != models.ContributionPending:
			return models.ErrConflict("contribution for %s in round %d already exists (%s)", actor.ID, round, c.Status)
		case !c.Amount.Equal(amount):
			return models.ErrInvalidInput("amount %s does not match the round obligation %s", amount, c.Amount)
		default:
			if err := tx.MarkSubmitted(ctx, c); err != nil {
				return err
			}
		}

		if _, err := l.recorder.Append(ctx, tx, contributionEntry(actor, models.ActionContributionCreated, c)); err != nil {
			return err
		}

		contributions, err := tx.ListRoundContributions(ctx, groupID, round)
		if err != nil {
			return err
		}
		for _, rc := range contributions {
			if rc.Status == models.ContributionConfirmed {
				result.ConfirmedCount++
			}
		}
		result.Contribution = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.Contribution("submitted")
	l.logger.Info("Contribution recorded", "group_id", groupID, "member_id", actor.ID,
		"round", round, "contribution_id", result.Contribution.ID)
	return &result, nil
}

// Confirm accepts a PENDING contribution.
func (l *Ledger) Confirm(ctx context.Context, actor models.Actor, contributionID string) (*models.Contribution, error) {
	return l.review(ctx, actor, contributionID, models.ContributionConfirmed, "")
}

// Reject refuses a PENDING contribution. reason is required.
func (l *Ledger) Reject(ctx context.Context, actor models.Actor, contributionID, reason string) (*models.Contribution, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.ErrInvalidInput("a rejection reason is required")
	}
	return l.review(ctx, actor, contributionID, models.ContributionRejected, reason)
}

func (l *Ledger) review(ctx context.Context, actor models.Actor, contributionID string,
	to models.ContributionStatus, reason string,
) (*models.Contribution, error) {
	if !actor.Is(models.RoleAdmin, models.RoleCollector) {
		return nil, models.ErrForbidden("reviewing contributions requires ADMIN or COLLECTOR, actor %s is %s", actor.ID, actor.Role)
	}

	action := models.ActionContributionConfirmed
	if to == models.ContributionRejected {
		action = models.ActionContributionRejected
	}

	var c *models.Contribution
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.GetContribution(ctx, contributionID)
		if err != nil {
			return err
		}
		group, err := tx.GetGroup(ctx, c.GroupID)
		if err != nil {
			return err
		}
		if err := rules.AssertNotCompleted(group); err != nil {
			return err
		}
		if err := assertStaff(ctx, tx, actor, group.ID); err != nil {
			return err
		}
		if c.Status != models.ContributionPending {
			return models.ErrConflict("contribution %s is %s, only PENDING can be reviewed", c.ID, c.Status)
		}

		c.Status = to
		c.ReviewedBy = actor.ID
		c.RejectReason = reason
		if err := tx.TransitionContribution(ctx, c, models.ContributionPending); err != nil {
			return err
		}
		_, err = l.recorder.Append(ctx, tx, contributionEntry(actor, action, c))
		return err
	})
	if err != nil {
		return nil, err
	}

	l.metrics.Contribution(strings.ToLower(string(to)))
	l.logger.Info("Contribution reviewed", "contribution_id", c.ID, "group_id", c.GroupID,
		"member_id", c.MemberID, "status", c.Status, "reviewer", actor.ID)
	return c, nil
}

// assertStaff lets ADMIN through and requires COLLECTOR actors to hold an
// ACTIVE COLLECTOR membership in the group.
func assertStaff(ctx context.Context, r storage.Reader, actor models.Actor, groupID string) error {
	if actor.Role == models.RoleAdmin {
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

func contributionEntry(actor models.Actor, action models.ActionType, c *models.Contribution) audit.Entry {
	return audit.Entry{
		Actor:         actor,
		Action:        action,
		EntityType:    models.EntityContribution,
		EntityID:      c.ID,
		GroupID:       c.GroupID,
		SubjectUserID: c.MemberID,
		Payload: audit.ContributionChanged{
			MemberID: c.MemberID,
			Round:    c.RoundNumber,
			Amount:   c.Amount,
			Status:   c.Status,
			Reason:   c.RejectReason,
		},
	}
}
