// Package lifecycle drives groups through DRAFT, ACTIVE, ON_HOLD, COMPLETED
// and TERMINATED, and administers their memberships.
package lifecycle

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/metrics"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/rules"
	"github.com/mmynk/equb/internal/storage"
)

// MinActiveMembers is the smallest group that can run a round.
const MinActiveMembers = 2

// Manager implements the group lifecycle operations. Every operation runs
// in a single store transaction.
type Manager struct {
	store    storage.Store
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// deferAdvance leaves round advancement to ProgressRound.
	deferAdvance bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithRecorder sets the audit recorder. The default records with the
// manager's logger.
func WithRecorder(r *audit.Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithDeferredAdvance makes payout execution close a round without opening
// the next one; ProgressRound then advances or completes the group.
func WithDeferredAdvance(deferred bool) Option {
	return func(m *Manager) { m.deferAdvance = deferred }
}

// NewManager creates a Manager over store.
func NewManager(store storage.Store, opts ...Option) *Manager {
	m := &Manager{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	if m.recorder == nil {
		m.recorder = audit.NewRecorder(m.logger)
	}
	return m
}

// DefersAdvance reports whether payout execution leaves the round open.
func (m *Manager) DefersAdvance() bool {
	return m.deferAdvance
}

func requireAdmin(actor models.Actor, op string) error {
	if actor.Role != models.RoleAdmin {
		return models.ErrForbidden("%s requires ADMIN, actor %s is %s", op, actor.ID, actor.Role)
	}
	return nil
}

// Create inserts a DRAFT group and an ADMIN membership for its creator.
func (m *Manager) Create(ctx context.Context, actor models.Actor, spec models.GroupSpec) (*models.Group, error) {
	if err := requireAdmin(actor, "create group"); err != nil {
		return nil, err
	}
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:               strings.TrimSpace(spec.Name),
		Status:             models.GroupDraft,
		TotalRounds:        spec.TotalRounds,
		ContributionAmount: spec.ContributionAmount,
		Currency:           strings.ToUpper(strings.TrimSpace(spec.Currency)),
		CreatedBy:          actor.ID,
	}

	err := m.store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertGroup(ctx, group); err != nil {
			return err
		}
		creator := &models.Membership{
			GroupID: group.ID,
			UserID:  actor.ID,
			Role:    models.RoleAdmin,
			Status:  models.MembershipActive,
		}
		if err := tx.InsertMembership(ctx, creator); err != nil {
			return err
		}
		_, err := m.recorder.Append(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     models.ActionGroupCreated,
			EntityType: models.EntityGroup,
			EntityID:   group.ID,
			GroupID:    group.ID,
			Payload: audit.GroupCreated{
				Name:               group.Name,
				TotalRounds:        group.TotalRounds,
				ContributionAmount: group.ContributionAmount,
				Currency:           group.Currency,
				CurrentRound:       group.CurrentRound,
				CreatorID:          actor.ID,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.metrics.GroupTransition(string(models.GroupDraft))
	m.logger.Info("Group created", "group_id", group.ID, "total_rounds", group.TotalRounds,
		"contribution_amount", group.ContributionAmount.String())
	return group, nil
}

func validateSpec(spec models.GroupSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return models.ErrInvalidInput("group name is required")
	}
	if spec.TotalRounds < 2 {
		return models.ErrInvalidInput("total rounds must be at least 2, got %d", spec.TotalRounds)
	}
	if !spec.ContributionAmount.IsPositive() {
		return models.ErrInvalidInput("contribution amount must be positive, got %s", spec.ContributionAmount)
	}
	if strings.TrimSpace(spec.Currency) == "" {
		return models.ErrInvalidInput("currency is required")
	}
	return nil
}

// Activate moves a DRAFT group to ACTIVE and opens round 1.
func (m *Manager) Activate(ctx context.Context, actor models.Actor, groupID string) (*models.Group, error) {
	if err := requireAdmin(actor, "activate group"); err != nil {
		return nil, err
	}

	var group *models.Group
	err := m.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		group, err = tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if err := rules.AssertCanActivate(group); err != nil {
			return err
		}

		memberships, err := tx.ListMemberships(ctx, groupID)
		if err != nil {
			return err
		}
		if n := len(models.ActiveMembers(memberships)); n < MinActiveMembers {
			return models.ErrStateViolation("group %s has %d active members, at least %d are required",
				groupID, n, MinActiveMembers)
		}

		from := group.Status
		group.Status = models.GroupActive
		group.CurrentRound = 1
		if err := tx.UpdateGroupState(ctx, group); err != nil {
			return err
		}
		if err := m.InitializeRound(ctx, tx, group, actor); err != nil {
			return err
		}
		return m.appendTransition(ctx, tx, actor, group, models.ActionGroupActivated, from, "")
	})
	if err != nil {
		return nil, err
	}

	m.metrics.GroupTransition(string(models.GroupActive))
	m.logger.Info("Group activated", "group_id", groupID)
	return group, nil
}

// ProgressRound advances a group whose current round has been paid out,
// or completes it after the final round.
func (m *Manager) ProgressRound(ctx context.Context, actor models.Actor, groupID string) (*models.Group, error) {
	if err := requireAdmin(actor, "progress round"); err != nil {
		return nil, err
	}

	var group *models.Group
	var completed bool
	err := m.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		group, err = tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if err := rules.AssertCanExecutePayout(group); err != nil {
			return err
		}

		payout, err := tx.FindRoundPayout(ctx, groupID, group.CurrentRound)
		if err != nil {
			return err
		}
		if payout == nil || !payout.Status.Executed() {
			return models.ErrStateViolation("round %d of group %s has not been paid out", group.CurrentRound, groupID)
		}

		fromRound := group.CurrentRound
		completed, err = m.Advance(ctx, tx, group, actor)
		if err != nil {
			return err
		}
		if completed {
			return m.appendTransition(ctx, tx, actor, group, models.ActionGroupCompleted, models.GroupActive, "")
		}
		_, err = m.recorder.Append(ctx, tx, audit.Entry{
			Actor:      actor,
			Action:     models.ActionRoundProgressed,
			EntityType: models.EntityGroup,
			EntityID:   group.ID,
			GroupID:    group.ID,
			Payload:    audit.RoundProgressed{FromRound: fromRound, CurrentRound: group.CurrentRound},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if completed {
		m.metrics.GroupTransition(string(models.GroupCompleted))
		m.logger.Info("Group completed", "group_id", groupID)
	} else {
		m.logger.Info("Round progressed", "group_id", groupID, "current_round", group.CurrentRound)
	}
	return group, nil
}

// Hold pauses an ACTIVE group.
func (m *Manager) Hold(ctx context.Context, actor models.Actor, groupID, reason string) (*models.Group, error) {
	return m.transition(ctx, actor, groupID, "hold group", models.ActionGroupOnHold, models.GroupOnHold, reason,
		rules.AssertNotCompleted, rules.AssertActive)
}

// Resume reactivates an ON_HOLD group.
func (m *Manager) Resume(ctx context.Context, actor models.Actor, groupID string) (*models.Group, error) {
	return m.transition(ctx, actor, groupID, "resume group", models.ActionGroupResumed, models.GroupActive, "",
		rules.AssertNotCompleted, rules.AssertOnHold)
}

// Terminate closes a group permanently.
func (m *Manager) Terminate(ctx context.Context, actor models.Actor, groupID, reason string) (*models.Group, error) {
	return m.transition(ctx, actor, groupID, "terminate group", models.ActionGroupTerminated, models.GroupTerminated, reason,
		rules.AssertNotCompleted)
}

func (m *Manager) transition(ctx context.Context, actor models.Actor, groupID, op string,
	action models.ActionType, to models.GroupStatus, reason string, checks ...func(*models.Group) error,
) (*models.Group, error) {
	if err := requireAdmin(actor, op); err != nil {
		return nil, err
	}

	var group *models.Group
	err := m.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		group, err = tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		for _, check := range checks {
			if err := check(group); err != nil {
				return err
			}
		}

		from := group.Status
		group.Status = to
		if err := tx.UpdateGroupState(ctx, group); err != nil {
			return err
		}
		return m.appendTransition(ctx, tx, actor, group, action, from, reason)
	})
	if err != nil {
		return nil, err
	}

	m.metrics.GroupTransition(string(to))
	m.logger.Info("Group status changed", "group_id", groupID, "status", to, "reason", reason)
	return group, nil
}

func (m *Manager) appendTransition(ctx context.Context, tx storage.Tx, actor models.Actor, g *models.Group,
	action models.ActionType, from models.GroupStatus, reason string,
) error {
	_, err := m.recorder.Append(ctx, tx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: models.EntityGroup,
		EntityID:   g.ID,
		GroupID:    g.ID,
		Payload: audit.GroupTransition{
			From:         from,
			To:           g.Status,
			CurrentRound: g.CurrentRound,
			Reason:       reason,
		},
	})
	return err
}
