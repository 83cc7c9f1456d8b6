package calculator

import (
	"testing"
	"time"

	"github.com/mmynk/equb/internal/models"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func member(userID string, joinedOffset time.Duration) *models.Membership {
	return &models.Membership{
		UserID:   userID,
		Role:     models.RoleMember,
		Status:   models.MembershipActive,
		JoinedAt: t0.Add(joinedOffset),
	}
}

func TestNextRecipient(t *testing.T) {
	suspended := member("carol", 0)
	suspended.Status = models.MembershipSuspended
	collector := member("dave", -time.Hour)
	collector.Role = models.RoleCollector

	tests := []struct {
		name    string
		members []*models.Membership
		payouts []*models.Payout
		round   int
		want    string
	}{
		{
			name:    "earliest joiner first",
			members: []*models.Membership{member("bob", time.Minute), member("alice", 2*time.Minute)},
			round:   1,
			want:    "bob",
		},
		{
			name:    "ties broken by user id",
			members: []*models.Membership{member("zed", 0), member("amy", 0)},
			round:   1,
			want:    "amy",
		},
		{
			name:    "prior executed recipients excluded",
			members: []*models.Membership{member("amy", 0), member("bob", time.Minute)},
			payouts: []*models.Payout{{RoundNumber: 1, RecipientUserID: "amy", Status: models.PayoutExecuted}},
			round:   2,
			want:    "bob",
		},
		{
			name:    "prior pending schedules also excluded",
			members: []*models.Membership{member("amy", 0), member("bob", time.Minute), member("cy", 2*time.Minute)},
			payouts: []*models.Payout{
				{RoundNumber: 1, RecipientUserID: "amy", Status: models.PayoutExecuted},
				{RoundNumber: 2, RecipientUserID: "bob", Status: models.PayoutPending},
			},
			round: 3,
			want:  "cy",
		},
		{
			name:    "current round schedule does not exclude itself",
			members: []*models.Membership{member("amy", 0), member("bob", time.Minute)},
			payouts: []*models.Payout{{RoundNumber: 1, RecipientUserID: "amy", Status: models.PayoutPending}},
			round:   1,
			want:    "amy",
		},
		{
			name:    "suspended and non-member roles skipped",
			members: []*models.Membership{suspended, collector, member("erin", time.Hour)},
			round:   1,
			want:    "erin",
		},
		{
			name:    "exhausted rotation",
			members: []*models.Membership{member("amy", 0)},
			payouts: []*models.Payout{{RoundNumber: 1, RecipientUserID: "amy", Status: models.PayoutExecuted}},
			round:   2,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRecipient(tt.members, tt.payouts, tt.round)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected no recipient, got %s", got.UserID)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got no recipient", tt.want)
			}
			if got.UserID != tt.want {
				t.Errorf("recipient = %s, want %s", got.UserID, tt.want)
			}
		})
	}
}

func TestRotationOrder_Deterministic(t *testing.T) {
	members := []*models.Membership{member("c", 0), member("b", 0), member("a", time.Second)}
	first := RotationOrder(members, nil)
	second := RotationOrder([]*models.Membership{members[2], members[0], members[1]}, nil)

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 candidates, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].UserID != second[i].UserID {
			t.Errorf("position %d: %s != %s", i, first[i].UserID, second[i].UserID)
		}
	}
	if first[0].UserID != "b" || first[2].UserID != "a" {
		t.Errorf("unexpected order: %s %s %s", first[0].UserID, first[1].UserID, first[2].UserID)
	}
}
