// Package calculator holds the pure arithmetic of the ledger: recipient
// rotation, payout sizing, and settlement reconciliation.
package calculator

import (
	"sort"

	"github.com/mmynk/equb/internal/models"
)

// PriorRecipients collects the recipients of every payout row that belongs
// to a round other than round. Every payout status counts, so a recipient
// that was only scheduled is still excluded.
func PriorRecipients(payouts []*models.Payout, round int) map[string]bool {
	seen := make(map[string]bool)
	for _, p := range payouts {
		if p.RoundNumber == round || p.RecipientUserID == "" {
			continue
		}
		seen[p.RecipientUserID] = true
	}
	return seen
}

// RotationOrder returns the active MEMBER memberships not yet paid, ordered
// by (JoinedAt ASC, UserID ASC).
func RotationOrder(memberships []*models.Membership, paid map[string]bool) []*models.Membership {
	var candidates []*models.Membership
	for _, m := range memberships {
		if !m.ActiveMember() || paid[m.UserID] {
			continue
		}
		candidates = append(candidates, m)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
	return candidates
}

// NextRecipient picks the recipient for round. It returns nil when the
// rotation is exhausted; callers decide whether that is an error.
func NextRecipient(memberships []*models.Membership, payouts []*models.Payout, round int) *models.Membership {
	order := RotationOrder(memberships, PriorRecipients(payouts, round))
	if len(order) == 0 {
		return nil
	}
	return order[0]
}
