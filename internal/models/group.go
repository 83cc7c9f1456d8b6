package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GroupStatus is the lifecycle state of a group.
type GroupStatus string

const (
	GroupDraft      GroupStatus = "DRAFT"
	GroupActive     GroupStatus = "ACTIVE"
	GroupOnHold     GroupStatus = "ON_HOLD"
	GroupCompleted  GroupStatus = "COMPLETED"
	GroupTerminated GroupStatus = "TERMINATED"
)

// Terminal reports whether no further transition is possible from s.
func (s GroupStatus) Terminal() bool {
	return s == GroupCompleted || s == GroupTerminated
}

// Group is a rotating-savings circle ("equb").
//
// Invariant: CurrentRound <= TotalRounds+1. CurrentRound is 0 while DRAFT
// and TotalRounds+1 once the final payout has completed the cycle.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group.
	Name string

	Status GroupStatus

	// CurrentRound is the round currently collecting contributions.
	CurrentRound int

	// TotalRounds is the number of rounds in one full cycle (>= 2).
	TotalRounds int

	// ContributionAmount is the fixed amount every member pays per round.
	ContributionAmount decimal.Decimal

	// Currency is an ISO code carried for display; no conversion is done.
	Currency string

	// CreatedBy is the user ID of the ADMIN who created the group.
	CreatedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FinalRound reports whether the group is collecting its last round.
func (g *Group) FinalRound() bool {
	return g.CurrentRound == g.TotalRounds
}

// GroupSpec holds the caller-supplied fields for a new group.
type GroupSpec struct {
	Name               string
	TotalRounds        int
	ContributionAmount decimal.Decimal
	Currency           string
}
