package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/models"
)

// Group is the wire form of models.Group.
type Group struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Status             models.GroupStatus `json:"status"`
	CurrentRound       int                `json:"currentRound"`
	TotalRounds        int                `json:"totalRounds"`
	ContributionAmount decimal.Decimal    `json:"contributionAmount"`
	Currency           string             `json:"currency"`
	CreatedBy          string             `json:"createdBy"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Membership is the wire form of models.Membership.
type Membership struct {
	ID       string                  `json:"id"`
	GroupID  string                  `json:"groupId"`
	UserID   string                  `json:"userId"`
	Role     models.Role             `json:"role"`
	Status   models.MembershipStatus `json:"status"`
	JoinedAt time.Time               `json:"joinedAt"`
}

// Contribution is the wire form of models.Contribution.
type Contribution struct {
	ID           string                    `json:"id"`
	GroupID      string                    `json:"groupId"`
	MemberID     string                    `json:"memberId"`
	RoundNumber  int                       `json:"roundNumber"`
	Amount       decimal.Decimal           `json:"amount"`
	Status       models.ContributionStatus `json:"status"`
	SubmittedAt  *time.Time                `json:"submittedAt,omitempty"`
	ReviewedBy   string                    `json:"reviewedBy,omitempty"`
	RejectReason string                    `json:"rejectReason,omitempty"`
}

// Payout is the wire form of models.Payout.
type Payout struct {
	ID              string              `json:"id"`
	GroupID         string              `json:"groupId"`
	RoundNumber     int                 `json:"roundNumber"`
	RecipientUserID string              `json:"recipientUserId"`
	Amount          decimal.Decimal     `json:"amount"`
	Status          models.PayoutStatus `json:"status"`
	ExecutedAt      *time.Time          `json:"executedAt,omitempty"`
	ExecutedBy      string              `json:"executedBy,omitempty"`
}

// RoundSummary is the wire form of models.RoundSummary.
type RoundSummary struct {
	GroupID     string          `json:"groupId"`
	RoundNumber int             `json:"roundNumber"`
	Pending     int             `json:"pending"`
	Confirmed   int             `json:"confirmed"`
	Rejected    int             `json:"rejected"`
	Settled     int             `json:"settled"`
	Expected    int             `json:"expected"`
	Collected   decimal.Decimal `json:"collected"`
}

// Requests.

type CreateGroupRequest struct {
	Name               string          `json:"name"`
	TotalRounds        int             `json:"totalRounds"`
	ContributionAmount decimal.Decimal `json:"contributionAmount"`
	Currency           string          `json:"currency"`
}

// GroupRequest names a group. Used by every procedure that needs nothing else.
type GroupRequest struct {
	GroupID string `json:"groupId"`
}

// GroupReasonRequest carries the operator's reason for hold and terminate.
type GroupReasonRequest struct {
	GroupID string `json:"groupId"`
	Reason  string `json:"reason"`
}

type MemberRequest struct {
	GroupID string      `json:"groupId"`
	UserID  string      `json:"userId"`
	Role    models.Role `json:"role,omitempty"`
}

type RecordContributionRequest struct {
	GroupID string          `json:"groupId"`
	Round   int             `json:"round"`
	Amount  decimal.Decimal `json:"amount"`
}

// ReviewRequest confirms or rejects a contribution. Reason is required to reject.
type ReviewRequest struct {
	ContributionID string `json:"contributionId"`
	Reason         string `json:"reason,omitempty"`
}

// RoundRequest selects a round; zero means the group's current round.
type RoundRequest struct {
	GroupID string `json:"groupId"`
	Round   int    `json:"round,omitempty"`
}

type ActivityRequest struct {
	Limit int `json:"limit,omitempty"`
}

type AdminLogRequest struct {
	GroupID string `json:"groupId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Empty is the request of procedures without arguments.
type Empty struct{}

// Responses.

type GroupResponse struct {
	Group *Group `json:"group"`
}

type MembershipResponse struct {
	Membership *Membership `json:"membership"`
}

type RecordContributionResponse struct {
	Contribution   *Contribution `json:"contribution"`
	ConfirmedCount int           `json:"confirmedCount"`
}

type ContributionResponse struct {
	Contribution *Contribution `json:"contribution"`
}

type ContributionsResponse struct {
	Contributions []*Contribution `json:"contributions"`
}

type RoundSummaryResponse struct {
	Summary *RoundSummary `json:"summary"`
}

type ExecutePayoutResponse struct {
	Payout       *Payout `json:"payout"`
	Group        *Group  `json:"group"`
	SettledCount int     `json:"settledCount"`
	Completed    bool    `json:"completed"`
}

type FeedResponse struct {
	Events []audit.View `json:"events"`
}

func toGroup(g *models.Group) *Group {
	if g == nil {
		return nil
	}
	return &Group{
		ID:                 g.ID,
		Name:               g.Name,
		Status:             g.Status,
		CurrentRound:       g.CurrentRound,
		TotalRounds:        g.TotalRounds,
		ContributionAmount: g.ContributionAmount,
		Currency:           g.Currency,
		CreatedBy:          g.CreatedBy,
		CreatedAt:          g.CreatedAt,
		UpdatedAt:          g.UpdatedAt,
	}
}

func toMembership(m *models.Membership) *Membership {
	return &Membership{
		ID:       m.ID,
		GroupID:  m.GroupID,
		UserID:   m.UserID,
		Role:     m.Role,
		Status:   m.Status,
		JoinedAt: m.JoinedAt,
	}
}

func toContribution(c *models.Contribution) *Contribution {
	return &Contribution{
		ID:           c.ID,
		GroupID:      c.GroupID,
		MemberID:     c.MemberID,
		RoundNumber:  c.RoundNumber,
		Amount:       c.Amount,
		Status:       c.Status,
		SubmittedAt:  c.SubmittedAt,
		ReviewedBy:   c.ReviewedBy,
		RejectReason: c.RejectReason,
	}
}

func toPayout(p *models.Payout) *Payout {
	if p == nil {
		return nil
	}
	return &Payout{
		ID:              p.ID,
		GroupID:         p.GroupID,
		RoundNumber:     p.RoundNumber,
		RecipientUserID: p.RecipientUserID,
		Amount:          p.Amount,
		Status:          p.Status,
		ExecutedAt:      p.ExecutedAt,
		ExecutedBy:      p.ExecutedBy,
	}
}

func toRoundSummary(s *models.RoundSummary) *RoundSummary {
	return &RoundSummary{
		GroupID:     s.GroupID,
		RoundNumber: s.RoundNumber,
		Pending:     s.Pending,
		Confirmed:   s.Confirmed,
		Rejected:    s.Rejected,
		Settled:     s.Settled,
		Expected:    s.Expected,
		Collected:   s.Collected,
	}
}
