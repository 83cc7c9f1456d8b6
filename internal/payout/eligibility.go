package payout

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/rules"
	"github.com/mmynk/equb/internal/storage"
)

// Readiness summarizes whether a payout can run.
type Readiness string

const (
	// Ready means Execute would succeed now.
	Ready Readiness = "READY"
	// Warning means the round is still collecting or awaiting review.
	Warning Readiness = "WARNING"
	// Blocked means Execute cannot succeed without an operator.
	Blocked Readiness = "BLOCKED"
)

// Eligibility is the dry-run view of Execute.
type Eligibility struct {
	GroupID        string          `json:"groupId"`
	Round          int             `json:"round"`
	CanExecute     bool            `json:"canExecute"`
	Status         Readiness       `json:"status"`
	Reasons        []string        `json:"reasons"`
	NextRecipient  string          `json:"nextRecipient,omitempty"`
	ConfirmedCount int             `json:"confirmedCount"`
	RequiredCount  int             `json:"requiredCount"`
	PayoutAmount   decimal.Decimal `json:"payoutAmount"`
}

// CheckEligibility reproduces the checks of Execute without writing.
func (e *Engine) CheckEligibility(ctx context.Context, groupID string) (*Eligibility, error) {
	var out *Eligibility
	err := e.store.View(ctx, func(r storage.Reader) error {
		group, err := r.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		out = &Eligibility{GroupID: groupID, Round: group.CurrentRound, Status: Ready, Reasons: []string{}}

		if err := rules.AssertCanExecutePayout(group); err != nil {
			out.block(err.Error())
			return nil
		}

		p, err := plan(ctx, r, group)
		if err != nil {
			return err
		}
		out.ConfirmedCount = len(p.confirmed)
		out.RequiredCount = len(p.active)
		out.PayoutAmount = p.amount
		if p.recipient != nil {
			out.NextRecipient = p.recipient.UserID
		}

		if p.existing != nil && p.existing.Status.Executed() {
			out.block(fmt.Sprintf("round %d was already paid out to %s", group.CurrentRound, p.existing.RecipientUserID))
		}
		if p.recipient == nil {
			out.block("no eligible recipients remain in the rotation")
		}
		if err := p.funded(); err != nil {
			out.warn(err.Error())
		}
		if p.rejected > 0 {
			out.block(fmt.Sprintf("%d active members have rejected contributions this round and cannot resubmit", p.rejected))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.CanExecute = out.Status == Ready
	return out, nil
}

func (el *Eligibility) block(reason string) {
	el.Status = Blocked
	el.Reasons = append(el.Reasons, reason)
}

func (el *Eligibility) warn(reason string) {
	if el.Status == Ready {
		el.Status = Warning
	}
	el.Reasons = append(el.Reasons, reason)
}
