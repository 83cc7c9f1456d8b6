// Package rules holds the pure preconditions for group status transitions.
// Every function inspects a Group snapshot and returns nil or a
// *models.StateViolationError. None of them perform I/O.
package rules

import "github.com/mmynk/equb/internal/models"

// AssertCanActivate requires a DRAFT group.
func AssertCanActivate(g *models.Group) error {
	if g.Status != models.GroupDraft {
		return models.ErrStateViolation("group %s cannot be activated from %s", g.ID, g.Status)
	}
	return nil
}

// AssertCanContribute requires an ACTIVE group.
func AssertCanContribute(g *models.Group) error {
	switch g.Status {
	case models.GroupActive:
		return nil
	case models.GroupDraft:
		return models.ErrStateViolation("group %s has not been activated yet", g.ID)
	case models.GroupCompleted:
		return models.ErrStateViolation("group %s has completed its cycle", g.ID)
	default:
		return models.ErrStateViolation("group %s is %s and not accepting contributions", g.ID, g.Status)
	}
}

// AssertCanExecutePayout requires an ACTIVE group with an open round.
func AssertCanExecutePayout(g *models.Group) error {
	if g.Status != models.GroupActive {
		return models.ErrStateViolation("group %s is %s, payouts require ACTIVE", g.ID, g.Status)
	}
	if g.CurrentRound < 1 || g.CurrentRound > g.TotalRounds {
		return models.ErrStateViolation("group %s round %d is outside 1..%d", g.ID, g.CurrentRound, g.TotalRounds)
	}
	return nil
}

// AssertActive requires exactly ACTIVE.
func AssertActive(g *models.Group) error {
	if g.Status != models.GroupActive {
		return models.ErrStateViolation("group %s is %s, expected ACTIVE", g.ID, g.Status)
	}
	return nil
}

// AssertOnHold requires exactly ON_HOLD.
func AssertOnHold(g *models.Group) error {
	if g.Status != models.GroupOnHold {
		return models.ErrStateViolation("group %s is %s, expected ON_HOLD", g.ID, g.Status)
	}
	return nil
}

// AssertNotCompleted gates every mutation once the group is terminal.
func AssertNotCompleted(g *models.Group) error {
	if g.Status.Terminal() {
		return models.ErrStateViolation("group %s is %s and can no longer change", g.ID, g.Status)
	}
	return nil
}

// AssertTerminalState is the inverse of AssertNotCompleted.
func AssertTerminalState(g *models.Group) error {
	if !g.Status.Terminal() {
		return models.ErrStateViolation("group %s is %s, expected a closed group", g.ID, g.Status)
	}
	return nil
}
