package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// FieldDrift is one field whose replayed and projected values differ.
type FieldDrift struct {
	Field     string `json:"field"`
	Replayed  string `json:"replayed"`
	Projected string `json:"projected"`
}

// DriftReport compares a replayed group with its projection rows.
type DriftReport struct {
	GroupID string       `json:"groupId"`
	Drifted bool         `json:"drifted"`
	Fields  []FieldDrift `json:"fields"`
	Replay  *GroupState  `json:"replay"`
}

// DetectDrift replays groupID and compares the result with the projection
// read in the same snapshot. Drift is reported, never returned as an error.
func (e *Engine) DetectDrift(ctx context.Context, groupID string) (*DriftReport, error) {
	report := &DriftReport{GroupID: groupID, Fields: []FieldDrift{}}
	err := e.store.View(ctx, func(r storage.Reader) error {
		group, err := r.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		memberships, err := r.ListMemberships(ctx, groupID)
		if err != nil {
			return err
		}
		payouts, err := r.ListPayouts(ctx, groupID)
		if err != nil {
			return err
		}
		state, err := replay(ctx, r, groupID)
		if err != nil {
			return err
		}
		report.Replay = state

		collectors := 0
		for _, m := range memberships {
			if m.Role == models.RoleCollector && m.Status == models.MembershipActive {
				collectors++
			}
		}

		report.compare("status", string(state.Status), string(group.Status))
		report.compare("currentRound", strconv.Itoa(state.CurrentRound), strconv.Itoa(group.CurrentRound))
		report.compare("activeMemberCount", strconv.Itoa(state.ActiveMemberCount()),
			strconv.Itoa(len(models.ActiveMembers(memberships))))
		report.compare("collectorCount", strconv.Itoa(state.CollectorCount()), strconv.Itoa(collectors))
		report.compare("payoutRecipients", replayedRecipients(state), projectedRecipients(payouts))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Drifted {
		e.logger.Warn("Projection drift detected", "group_id", groupID, "fields", len(report.Fields))
	}
	return report, nil
}

func (r *DriftReport) compare(field, replayed, projected string) {
	if replayed == projected {
		return
	}
	r.Drifted = true
	r.Fields = append(r.Fields, FieldDrift{Field: field, Replayed: replayed, Projected: projected})
}

func replayedRecipients(s *GroupState) string {
	parts := make([]string, len(s.Payouts))
	for i, p := range s.Payouts {
		parts[i] = fmt.Sprintf("%d:%s", p.Round, p.RecipientUserID)
	}
	return strings.Join(parts, ",")
}

// projectedRecipients lists executed payouts; payouts is ordered by round.
func projectedRecipients(payouts []*models.Payout) string {
	var parts []string
	for _, p := range payouts {
		if p.Status.Executed() {
			parts = append(parts, fmt.Sprintf("%d:%s", p.RoundNumber, p.RecipientUserID))
		}
	}
	return strings.Join(parts, ",")
}
