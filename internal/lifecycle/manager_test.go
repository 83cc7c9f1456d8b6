package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
	"github.com/mmynk/equb/internal/storage/sqlite"
)

var (
	admin  = models.Actor{ID: "admin", Role: models.RoleAdmin}
	member = models.Actor{ID: "alice", Role: models.RoleMember}
)

func newManager(t *testing.T) (*Manager, storage.Store) {
	t.Helper()
	store := sqlite.OpenTest(t)
	return NewManager(store), store
}

// draftGroup creates a group and adds each user as an ACTIVE MEMBER.
func draftGroup(t *testing.T, m *Manager, rounds int, users ...string) *models.Group {
	t.Helper()
	ctx := context.Background()
	g, err := m.Create(ctx, admin, models.GroupSpec{
		Name:               "Merkato Circle",
		TotalRounds:        rounds,
		ContributionAmount: decimal.NewFromInt(1000),
		Currency:           "etb",
	})
	require.NoError(t, err)
	for _, u := range users {
		_, err := m.AddMember(ctx, admin, g.ID, u, models.RoleMember)
		require.NoError(t, err)
	}
	return g
}

// markPaid executes the scheduled payout of round without the payout engine.
func markPaid(t *testing.T, store storage.Store, groupID string, round int) {
	t.Helper()
	ctx := context.Background()
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		p, err := tx.FindRoundPayout(ctx, groupID, round)
		if err != nil {
			return err
		}
		require.NotNil(t, p, "round %d has no scheduled payout", round)
		now := time.Now().UTC()
		p.Status = models.PayoutExecuted
		p.ExecutedAt = &now
		p.ExecutedBy = admin.ID
		return tx.ExecuteScheduledPayout(ctx, p)
	})
	require.NoError(t, err)
}

func auditActions(t *testing.T, store storage.Store, groupID string) []models.ActionType {
	t.Helper()
	ctx := context.Background()
	var out []models.ActionType
	err := store.View(ctx, func(r storage.Reader) error {
		events, err := r.ListAuditEvents(ctx, models.AuditFilter{GroupID: groupID})
		for _, e := range events {
			out = append(out, e.ActionType)
		}
		return err
	})
	require.NoError(t, err)
	return out
}

func TestCreate(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()

	t.Run("requires ADMIN", func(t *testing.T) {
		_, err := m.Create(ctx, member, models.GroupSpec{Name: "x", TotalRounds: 2,
			ContributionAmount: decimal.NewFromInt(1), Currency: "ETB"})
		var forbidden *models.ForbiddenError
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("validates spec", func(t *testing.T) {
		specs := []models.GroupSpec{
			{Name: "", TotalRounds: 2, ContributionAmount: decimal.NewFromInt(1), Currency: "ETB"},
			{Name: "x", TotalRounds: 1, ContributionAmount: decimal.NewFromInt(1), Currency: "ETB"},
			{Name: "x", TotalRounds: 2, ContributionAmount: decimal.Zero, Currency: "ETB"},
			{Name: "x", TotalRounds: 2, ContributionAmount: decimal.NewFromInt(1), Currency: " "},
		}
		for _, spec := range specs {
			_, err := m.Create(ctx, admin, spec)
			var invalid *models.InvalidInputError
			assert.ErrorAs(t, err, &invalid, "spec %+v", spec)
		}
	})

	t.Run("creates DRAFT group with creator membership", func(t *testing.T) {
		g := draftGroup(t, m, 3)
		assert.Equal(t, models.GroupDraft, g.Status)
		assert.Equal(t, 0, g.CurrentRound)
		assert.Equal(t, "ETB", g.Currency)

		err := store.View(ctx, func(r storage.Reader) error {
			ms, err := r.GetMembership(ctx, g.ID, admin.ID)
			require.NoError(t, err)
			assert.Equal(t, models.RoleAdmin, ms.Role)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []models.ActionType{models.ActionGroupCreated}, auditActions(t, store, g.ID))
	})
}

func TestActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("opens round 1 with obligations and a scheduled payout", func(t *testing.T) {
		m, store := newManager(t)
		g := draftGroup(t, m, 3, "alice", "bob")

		g, err := m.Activate(ctx, admin, g.ID)
		require.NoError(t, err)
		assert.Equal(t, models.GroupActive, g.Status)
		assert.Equal(t, 1, g.CurrentRound)

		err = store.View(ctx, func(r storage.Reader) error {
			cs, err := r.ListRoundContributions(ctx, g.ID, 1)
			require.NoError(t, err)
			require.Len(t, cs, 2)
			for _, c := range cs {
				assert.Equal(t, models.ContributionPending, c.Status)
				assert.False(t, c.Submitted())
				assert.True(t, c.Amount.Equal(decimal.NewFromInt(1000)))
			}

			p, err := r.FindRoundPayout(ctx, g.ID, 1)
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, models.PayoutPending, p.Status)
			assert.Equal(t, "alice", p.RecipientUserID)
			assert.True(t, p.Amount.Equal(decimal.NewFromInt(2000)), "amount %s", p.Amount)
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, []models.ActionType{
			models.ActionGroupCreated,
			models.ActionMemberAdded,
			models.ActionMemberAdded,
			models.ActionRoundInitialized,
			models.ActionGroupActivated,
		}, auditActions(t, store, g.ID))
	})

	t.Run("needs two active members", func(t *testing.T) {
		m, store := newManager(t)
		g := draftGroup(t, m, 2, "alice")

		_, err := m.Activate(ctx, admin, g.ID)
		var sv *models.StateViolationError
		require.ErrorAs(t, err, &sv)

		err = store.View(ctx, func(r storage.Reader) error {
			got, err := r.GetGroup(ctx, g.ID)
			require.NoError(t, err)
			assert.Equal(t, models.GroupDraft, got.Status)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("suspended and non-member roles do not count", func(t *testing.T) {
		m, _ := newManager(t)
		g := draftGroup(t, m, 2, "alice", "bob")
		_, err := m.AddMember(ctx, admin, g.ID, "collector", models.RoleCollector)
		require.NoError(t, err)
		_, err = m.Suspend(ctx, admin, g.ID, "bob")
		require.NoError(t, err)

		_, err = m.Activate(ctx, admin, g.ID)
		var sv *models.StateViolationError
		assert.ErrorAs(t, err, &sv)
	})

	t.Run("only from DRAFT", func(t *testing.T) {
		m, _ := newManager(t)
		g := draftGroup(t, m, 2, "alice", "bob")
		_, err := m.Activate(ctx, admin, g.ID)
		require.NoError(t, err)

		_, err = m.Activate(ctx, admin, g.ID)
		var sv *models.StateViolationError
		assert.ErrorAs(t, err, &sv)
	})

	t.Run("missing group", func(t *testing.T) {
		m, _ := newManager(t)
		_, err := m.Activate(ctx, admin, "missing")
		var nf *models.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t)
	g := draftGroup(t, m, 2, "alice", "bob")

	_, err := m.AddMember(ctx, admin, g.ID, "alice", models.RoleMember)
	var conflict *models.ConflictError
	assert.ErrorAs(t, err, &conflict, "duplicate member")

	_, err = m.AddMember(ctx, member, g.ID, "carol", models.RoleMember)
	var forbidden *models.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	_, err = m.AddMember(ctx, admin, g.ID, "carol", models.Role("OWNER"))
	var invalid *models.InvalidInputError
	assert.ErrorAs(t, err, &invalid)

	ms, err := m.ChangeRole(ctx, admin, g.ID, "bob", models.RoleCollector)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCollector, ms.Role)
	_, err = m.ChangeRole(ctx, admin, g.ID, "bob", models.RoleCollector)
	assert.ErrorAs(t, err, &conflict)

	_, err = m.Suspend(ctx, admin, g.ID, "alice")
	require.NoError(t, err)
	_, err = m.Suspend(ctx, admin, g.ID, "alice")
	assert.ErrorAs(t, err, &conflict)
	ms, err = m.Reinstate(ctx, admin, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.MembershipActive, ms.Status)

	_, err = m.Suspend(ctx, admin, g.ID, "nobody")
	var nf *models.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = m.ChangeRole(ctx, admin, g.ID, "bob", models.RoleMember)
	require.NoError(t, err)
	_, err = m.Activate(ctx, admin, g.ID)
	require.NoError(t, err)

	_, err = m.AddMember(ctx, admin, g.ID, "carol", models.RoleMember)
	var sv *models.StateViolationError
	assert.ErrorAs(t, err, &sv, "members join only while DRAFT")

	assert.Equal(t, []models.ActionType{
		models.ActionGroupCreated,
		models.ActionMemberAdded,
		models.ActionMemberAdded,
		models.ActionMemberRoleChanged,
		models.ActionMemberSuspended,
		models.ActionMemberReinstated,
		models.ActionMemberRoleChanged,
		models.ActionRoundInitialized,
		models.ActionGroupActivated,
	}, auditActions(t, store, g.ID))
}

func TestHoldResumeTerminate(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	g := draftGroup(t, m, 2, "alice", "bob")
	var sv *models.StateViolationError

	_, err := m.Hold(ctx, admin, g.ID, "not started")
	assert.ErrorAs(t, err, &sv, "hold requires ACTIVE")

	_, err = m.Activate(ctx, admin, g.ID)
	require.NoError(t, err)

	_, err = m.Resume(ctx, admin, g.ID)
	assert.ErrorAs(t, err, &sv, "resume requires ON_HOLD")

	got, err := m.Hold(ctx, admin, g.ID, "collector travelling")
	require.NoError(t, err)
	assert.Equal(t, models.GroupOnHold, got.Status)

	_, err = m.Hold(ctx, member, g.ID, "")
	var forbidden *models.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	got, err = m.Resume(ctx, admin, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupActive, got.Status)
	assert.Equal(t, 1, got.CurrentRound)

	got, err = m.Terminate(ctx, admin, g.ID, "dispute")
	require.NoError(t, err)
	assert.Equal(t, models.GroupTerminated, got.Status)

	_, err = m.Terminate(ctx, admin, g.ID, "again")
	assert.ErrorAs(t, err, &sv)
	_, err = m.Resume(ctx, admin, g.ID)
	assert.ErrorAs(t, err, &sv)
	_, err = m.Suspend(ctx, admin, g.ID, "alice")
	assert.ErrorAs(t, err, &sv, "terminal groups reject membership changes")
}

func TestProgressRound(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t)
	g := draftGroup(t, m, 2, "alice", "bob")
	_, err := m.Activate(ctx, admin, g.ID)
	require.NoError(t, err)

	_, err = m.ProgressRound(ctx, admin, g.ID)
	var sv *models.StateViolationError
	require.ErrorAs(t, err, &sv, "cannot skip an unpaid round")

	markPaid(t, store, g.ID, 1)
	g, err = m.ProgressRound(ctx, admin, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, g.CurrentRound)
	assert.Equal(t, models.GroupActive, g.Status)

	err = store.View(ctx, func(r storage.Reader) error {
		cs, err := r.ListRoundContributions(ctx, g.ID, 2)
		require.NoError(t, err)
		assert.Len(t, cs, 2)
		p, err := r.FindRoundPayout(ctx, g.ID, 2)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "bob", p.RecipientUserID, "alice was paid in round 1")
		return nil
	})
	require.NoError(t, err)

	markPaid(t, store, g.ID, 2)
	g, err = m.ProgressRound(ctx, admin, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupCompleted, g.Status)
	assert.Equal(t, 3, g.CurrentRound)

	_, err = m.ProgressRound(ctx, admin, g.ID)
	assert.ErrorAs(t, err, &sv)

	actions := auditActions(t, store, g.ID)
	assert.Contains(t, actions, models.ActionRoundProgressed)
	assert.Equal(t, models.ActionGroupCompleted, actions[len(actions)-1])
}
