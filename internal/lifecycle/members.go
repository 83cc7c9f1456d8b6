package lifecycle

import (
	"context"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/rules"
	"github.com/mmynk/equb/internal/storage"
)

// AddMember invites userID into a DRAFT group with role.
func (m *Manager) AddMember(ctx context.Context, actor models.Actor, groupID, userID string, role models.Role) (*models.Membership, error) {
	if err := requireAdmin(actor, "add member"); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, models.ErrInvalidInput("user id is required")
	}
	if !role.Valid() {
		return nil, models.ErrInvalidInput("unknown role %q", role)
	}

	membership := &models.Membership{
		GroupID: groupID,
		UserID:  userID,
		Role:    role,
		Status:  models.MembershipActive,
	}
	err := m.store.WithTx(ctx, func(tx storage.Tx) error {
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if group.Status != models.GroupDraft {
			return models.ErrStateViolation("members can only be added while group %s is DRAFT, it is %s", groupID, group.Status)
		}
		if err := tx.InsertMembership(ctx, membership); err != nil {
			return err
		}
		return m.appendMember(ctx, tx, actor, models.ActionMemberAdded, membership, "")
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Member added", "group_id", groupID, "user_id", userID, "role", role)
	return membership, nil
}

// ChangeRole changes the role of an existing membership.
func (m *Manager) ChangeRole(ctx context.Context, actor models.Actor, groupID, userID string, role models.Role) (*models.Membership, error) {
	if !role.Valid() {
		return nil, models.ErrInvalidInput("unknown role %q", role)
	}
	return m.updateMember(ctx, actor, groupID, userID, "change role", models.ActionMemberRoleChanged,
		func(ms *models.Membership) error {
			if ms.Role == role {
				return models.ErrConflict("%s already has role %s in group %s", userID, role, groupID)
			}
			ms.Role = role
			return nil
		})
}

// Suspend removes a member from future rounds without deleting the row.
func (m *Manager) Suspend(ctx context.Context, actor models.Actor, groupID, userID string) (*models.Membership, error) {
	return m.updateMember(ctx, actor, groupID, userID, "suspend member", models.ActionMemberSuspended,
		setStatus(models.MembershipSuspended))
}

// Reinstate returns a suspended member to ACTIVE.
func (m *Manager) Reinstate(ctx context.Context, actor models.Actor, groupID, userID string) (*models.Membership, error) {
	return m.updateMember(ctx, actor, groupID, userID, "reinstate member", models.ActionMemberReinstated,
		setStatus(models.MembershipActive))
}

func setStatus(to models.MembershipStatus) func(*models.Membership) error {
	return func(ms *models.Membership) error {
		if ms.Status == to {
			return models.ErrConflict("membership of %s in group %s is already %s", ms.UserID, ms.GroupID, to)
		}
		ms.Status = to
		return nil
	}
}

func (m *Manager) updateMember(ctx context.Context, actor models.Actor, groupID, userID, op string,
	action models.ActionType, mutate func(*models.Membership) error,
) (*models.Membership, error) {
	if err := requireAdmin(actor, op); err != nil {
		return nil, err
	}

	var membership *models.Membership
	err := m.store.WithTx(ctx, func(tx storage.Tx) error {
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if err := rules.AssertNotCompleted(group); err != nil {
			return err
		}
		membership, err = tx.GetMembership(ctx, groupID, userID)
		if err != nil {
			return err
		}

		previous := membership.Role
		if err := mutate(membership); err != nil {
			return err
		}
		if err := tx.UpdateMembership(ctx, membership); err != nil {
			return err
		}
		if previous == membership.Role {
			previous = ""
		}
		return m.appendMember(ctx, tx, actor, action, membership, previous)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Membership updated", "group_id", groupID, "user_id", userID,
		"action", action, "role", membership.Role, "status", membership.Status)
	return membership, nil
}

func (m *Manager) appendMember(ctx context.Context, tx storage.Tx, actor models.Actor,
	action models.ActionType, ms *models.Membership, previousRole models.Role,
) error {
	_, err := m.recorder.Append(ctx, tx, audit.Entry{
		Actor:         actor,
		Action:        action,
		EntityType:    models.EntityMembership,
		EntityID:      ms.ID,
		GroupID:       ms.GroupID,
		SubjectUserID: ms.UserID,
		Payload: audit.MemberChanged{
			UserID:       ms.UserID,
			Role:         ms.Role,
			Status:       ms.Status,
			PreviousRole: previousRole,
		},
	})
	return err
}
