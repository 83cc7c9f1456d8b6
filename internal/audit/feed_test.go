package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
	"github.com/mmynk/equb/internal/storage/sqlite"
)

var (
	admin = models.Actor{ID: "admin", Role: models.RoleAdmin, IPAddress: "10.0.0.1", DeviceID: "laptop"}
	alice = models.Actor{ID: "alice", Role: models.RoleMember, IPAddress: "10.0.0.2", DeviceID: "phone"}
	bob   = models.Actor{ID: "bob", Role: models.RoleMember}
	carol = models.Actor{ID: "carol", Role: models.RoleMember}
)

// seedLog writes a small group history and returns the group ID.
func seedLog(t *testing.T, store storage.Store) string {
	t.Helper()
	ctx := context.Background()
	rec := NewRecorder(nil)

	var groupID string
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		g := &models.Group{
			Name: "Feed", Status: models.GroupDraft, TotalRounds: 2,
			ContributionAmount: decimal.NewFromInt(100), Currency: "ETB", CreatedBy: admin.ID,
		}
		if err := tx.InsertGroup(ctx, g); err != nil {
			return err
		}
		groupID = g.ID
		for _, m := range []*models.Membership{
			{GroupID: g.ID, UserID: admin.ID, Role: models.RoleAdmin, Status: models.MembershipActive},
			{GroupID: g.ID, UserID: alice.ID, Role: models.RoleMember, Status: models.MembershipActive},
			{GroupID: g.ID, UserID: bob.ID, Role: models.RoleMember, Status: models.MembershipActive},
		} {
			if err := tx.InsertMembership(ctx, m); err != nil {
				return err
			}
		}

		entries := []Entry{
			{Actor: admin, Action: models.ActionGroupCreated, EntityType: models.EntityGroup, EntityID: g.ID, GroupID: g.ID, CommandID: "cmd-1"},
			{Actor: alice, Action: models.ActionContributionCreated, EntityType: models.EntityContribution, EntityID: "c-alice", GroupID: g.ID, SubjectUserID: alice.ID,
				Payload: ContributionChanged{MemberID: alice.ID, Round: 1, Amount: decimal.NewFromInt(100), Status: models.ContributionPending}},
			{Actor: bob, Action: models.ActionContributionCreated, EntityType: models.EntityContribution, EntityID: "c-bob", GroupID: g.ID, SubjectUserID: bob.ID,
				Payload: ContributionChanged{MemberID: bob.ID, Round: 1, Amount: decimal.NewFromInt(100), Status: models.ContributionPending}},
			{Actor: admin, Action: models.ActionContributionRejected, EntityType: models.EntityContribution, EntityID: "c-bob", GroupID: g.ID, SubjectUserID: bob.ID},
			{Actor: admin, Action: models.ActionPayoutRejected, EntityType: models.EntityPayout, EntityID: g.ID, GroupID: g.ID},
		}
		for _, e := range entries {
			if _, err := rec.Append(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return groupID
}

func actions(views []View) []models.ActionType {
	out := make([]models.ActionType, len(views))
	for i, v := range views {
		out[i] = v.Action
	}
	return out
}

func TestFeed(t *testing.T) {
	store := sqlite.OpenTest(t)
	groupID := seedLog(t, store)
	feed := NewFeed(store, nil)
	ctx := context.Background()

	t.Run("admin log requires ADMIN", func(t *testing.T) {
		_, err := feed.AdminLog(ctx, alice, models.AuditFilter{})
		var forbidden *models.ForbiddenError
		assert.True(t, errors.As(err, &forbidden))
	})

	t.Run("admin log is complete and unredacted", func(t *testing.T) {
		views, err := feed.AdminLog(ctx, admin, models.AuditFilter{GroupID: groupID})
		require.NoError(t, err)
		require.Len(t, views, 5)
		assert.Equal(t, "10.0.0.1", views[0].IPAddress)
		assert.Equal(t, "cmd-1", views[0].CommandID)
		assert.Equal(t, "Group created", views[0].Label)
	})

	t.Run("member timeline is filtered and redacted", func(t *testing.T) {
		views, err := feed.GroupTimeline(ctx, alice, groupID)
		require.NoError(t, err)
		assert.Equal(t, []models.ActionType{
			models.ActionGroupCreated,
			models.ActionContributionCreated,
			models.ActionContributionCreated,
		}, actions(views))

		for _, v := range views {
			assert.Empty(t, v.IPAddress)
			assert.Empty(t, v.DeviceID)
			assert.Empty(t, v.CommandID)
		}
		assert.NotEmpty(t, views[1].Payload, "own contribution keeps its payload")
		assert.Empty(t, views[2].Payload, "another member's contribution payload is hidden")
	})

	t.Run("rejection is visible to its subject", func(t *testing.T) {
		views, err := feed.GroupTimeline(ctx, bob, groupID)
		require.NoError(t, err)
		assert.Contains(t, actions(views), models.ActionContributionRejected)
		assert.NotContains(t, actions(views), models.ActionPayoutRejected)
	})

	t.Run("timeline requires membership", func(t *testing.T) {
		_, err := feed.GroupTimeline(ctx, carol, groupID)
		var forbidden *models.ForbiddenError
		assert.True(t, errors.As(err, &forbidden))
	})

	t.Run("timeline of missing group", func(t *testing.T) {
		_, err := feed.GroupTimeline(ctx, admin, "missing")
		var nf *models.NotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("personal activity lists performed and subject events in order", func(t *testing.T) {
		views, err := feed.PersonalActivity(ctx, bob, 0)
		require.NoError(t, err)
		assert.Equal(t, []models.ActionType{
			models.ActionContributionCreated,
			models.ActionContributionRejected,
		}, actions(views))
		for i := 1; i < len(views); i++ {
			assert.Greater(t, views[i].Seq, views[i-1].Seq)
		}
	})
}
