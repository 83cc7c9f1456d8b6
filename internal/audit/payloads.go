package audit

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/models"
)

// Payloads carry the resulting state of each mutation so that replay never
// needs to consult the projection tables.

type GroupCreated struct {
	Name               string          `json:"name"`
	TotalRounds        int             `json:"totalRounds"`
	ContributionAmount decimal.Decimal `json:"contributionAmount"`
	Currency           string          `json:"currency"`
	CurrentRound       int             `json:"currentRound"`
	CreatorID          string          `json:"creatorId"`
}

type MemberChanged struct {
	UserID       string                  `json:"userId"`
	Role         models.Role             `json:"role"`
	Status       models.MembershipStatus `json:"status"`
	PreviousRole models.Role             `json:"previousRole,omitempty"`
}

type GroupTransition struct {
	From         models.GroupStatus `json:"from"`
	To           models.GroupStatus `json:"to"`
	CurrentRound int                `json:"currentRound"`
	Reason       string             `json:"reason,omitempty"`
}

type RoundInitialized struct {
	Round             int      `json:"round"`
	ContributionIDs   []string `json:"contributionIds"`
	ScheduledPayoutID string   `json:"scheduledPayoutId,omitempty"`
	ScheduledTo       string   `json:"scheduledTo,omitempty"`
}

type RoundProgressed struct {
	FromRound    int `json:"fromRound"`
	CurrentRound int `json:"currentRound"`
}

type RoundClosed struct {
	Round        int                `json:"round"`
	CurrentRound int                `json:"currentRound"`
	Status       models.GroupStatus `json:"status"`
}

type ContributionChanged struct {
	MemberID string                    `json:"memberId"`
	Round    int                       `json:"round"`
	Amount   decimal.Decimal           `json:"amount"`
	Status   models.ContributionStatus `json:"status"`
	Reason   string                    `json:"reason,omitempty"`
}

type PayoutCompleted struct {
	Round            int             `json:"round"`
	RecipientUserID  string          `json:"recipientUserId"`
	PayoutAmount     decimal.Decimal `json:"payoutAmount"`
	TotalContributed decimal.Decimal `json:"totalContributed"`
	MemberCount      int             `json:"memberCount"`
	SettledCount     int             `json:"settledCount"`
	SettledIDs       []string        `json:"settledContributionIds"`
}

type PayoutRejected struct {
	Round          int             `json:"round"`
	Reason         string          `json:"reason"`
	ExpectedCount  int             `json:"expectedCount"`
	ActualCount    int             `json:"actualCount"`
	ExpectedAmount decimal.Decimal `json:"expectedAmount"`
	ActualAmount   decimal.Decimal `json:"actualAmount"`
}
