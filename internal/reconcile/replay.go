package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// MemberState is a membership as reconstructed from the log.
type MemberState struct {
	Role   models.Role             `json:"role"`
	Status models.MembershipStatus `json:"status"`
}

// PayoutRecord is one completed payout as reconstructed from the log.
type PayoutRecord struct {
	Round           int             `json:"round"`
	RecipientUserID string          `json:"recipientUserId"`
	Amount          decimal.Decimal `json:"amount"`
}

// GroupState is a group rebuilt purely from its audit events.
type GroupState struct {
	GroupID      string                 `json:"groupId"`
	Status       models.GroupStatus     `json:"status"`
	CurrentRound int                    `json:"currentRound"`
	Members      map[string]MemberState `json:"members"`
	Payouts      []PayoutRecord         `json:"payouts"`
	EventCount   int                    `json:"eventCount"`
	LastSeq      int64                  `json:"lastSeq"`
}

// ActiveMemberCount counts ACTIVE members with role MEMBER.
func (s *GroupState) ActiveMemberCount() int {
	n := 0
	for _, m := range s.Members {
		if m.Role == models.RoleMember && m.Status == models.MembershipActive {
			n++
		}
	}
	return n
}

// CollectorCount counts ACTIVE collectors.
func (s *GroupState) CollectorCount() int {
	n := 0
	for _, m := range s.Members {
		if m.Role == models.RoleCollector && m.Status == models.MembershipActive {
			n++
		}
	}
	return n
}

// Replay rebuilds groupID's state from the audit log alone.
func (e *Engine) Replay(ctx context.Context, groupID string) (*GroupState, error) {
	var state *GroupState
	err := e.store.View(ctx, func(r storage.Reader) error {
		var err error
		state, err = replay(ctx, r, groupID)
		return err
	})
	return state, err
}

func replay(ctx context.Context, r storage.Reader, groupID string) (*GroupState, error) {
	events, err := r.ListAuditEvents(ctx, models.AuditFilter{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, models.ErrNotFound("no audit events for group %s", groupID)
	}

	state := &GroupState{
		GroupID:      groupID,
		Status:       models.GroupDraft,
		CurrentRound: 1,
		Members:      make(map[string]MemberState),
		Payouts:      []PayoutRecord{},
	}
	for _, ev := range events {
		if err := state.apply(ev); err != nil {
			return nil, fmt.Errorf("failed to replay event %d (%s): %w", ev.Seq, ev.ActionType, err)
		}
		state.EventCount++
		state.LastSeq = ev.Seq
	}
	sort.Slice(state.Payouts, func(i, j int) bool { return state.Payouts[i].Round < state.Payouts[j].Round })
	return state, nil
}

// apply folds one event into the state. Contribution events and round
// initialization do not change group-level state.
func (s *GroupState) apply(ev *models.AuditEvent) error {
	switch ev.ActionType {
	case models.ActionGroupCreated:
		var p audit.GroupCreated
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		s.Status = models.GroupDraft
		s.CurrentRound = p.CurrentRound
		s.Members[p.CreatorID] = MemberState{Role: models.RoleAdmin, Status: models.MembershipActive}

	case models.ActionMemberAdded, models.ActionMemberRoleChanged,
		models.ActionMemberSuspended, models.ActionMemberReinstated:
		var p audit.MemberChanged
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		s.Members[p.UserID] = MemberState{Role: p.Role, Status: p.Status}

	case models.ActionGroupActivated, models.ActionGroupOnHold, models.ActionGroupResumed,
		models.ActionGroupTerminated, models.ActionGroupCompleted:
		var p audit.GroupTransition
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		s.Status = p.To
		s.CurrentRound = p.CurrentRound

	case models.ActionRoundProgressed:
		var p audit.RoundProgressed
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		s.CurrentRound = p.CurrentRound

	case models.ActionRoundClosed:
		var p audit.RoundClosed
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		s.CurrentRound = p.CurrentRound
		s.Status = p.Status

	case models.ActionPayoutCompleted:
		var p audit.PayoutCompleted
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		s.Payouts = append(s.Payouts, PayoutRecord{
			Round:           p.Round,
			RecipientUserID: p.RecipientUserID,
			Amount:          p.PayoutAmount,
		})

	case models.ActionRoundInitialized,
		models.ActionContributionCreated, models.ActionContributionConfirmed, models.ActionContributionRejected,
		models.ActionPayoutRejected:

	default:
		return fmt.Errorf("unknown action type %q", ev.ActionType)
	}
	return nil
}
