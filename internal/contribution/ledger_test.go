package contribution

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/equb/internal/lifecycle"
	"github.com/mmynk/equb/internal/metrics"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
	"github.com/mmynk/equb/internal/storage/sqlite"
)

var (
	admin     = models.Actor{ID: "admin", Role: models.RoleAdmin}
	collector = models.Actor{ID: "collector", Role: models.RoleCollector}
	outsider  = models.Actor{ID: "outsider", Role: models.RoleCollector}
	alice     = models.Actor{ID: "alice", Role: models.RoleMember}
	bob       = models.Actor{ID: "bob", Role: models.RoleMember}
	carol     = models.Actor{ID: "carol", Role: models.RoleMember}
	amount    = decimal.NewFromInt(1000)
)

type fixture struct {
	store   storage.Store
	manager *lifecycle.Manager
	ledger  *Ledger
	group   *models.Group
}

// activeGroup builds an ACTIVE two-round group with alice, bob and an
// assigned collector.
func activeGroup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := sqlite.OpenTest(t)
	manager := lifecycle.NewManager(store)

	g, err := manager.Create(ctx, admin, models.GroupSpec{
		Name: "Tuesday Equb", TotalRounds: 2, ContributionAmount: amount, Currency: "ETB",
	})
	require.NoError(t, err)
	for _, u := range []models.Actor{alice, bob} {
		_, err := manager.AddMember(ctx, admin, g.ID, u.ID, models.RoleMember)
		require.NoError(t, err)
	}
	_, err = manager.AddMember(ctx, admin, g.ID, collector.ID, models.RoleCollector)
	require.NoError(t, err)
	g, err = manager.Activate(ctx, admin, g.ID)
	require.NoError(t, err)

	return &fixture{
		store:   store,
		manager: manager,
		ledger:  NewLedger(store, nil, metrics.New(prometheus.NewRegistry()), nil),
		group:   g,
	}
}

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps the round obligation", func(t *testing.T) {
		f := activeGroup(t)
		res, err := f.ledger.Record(ctx, alice, f.group.ID, 1, decimal.RequireFromString("1000.00"))
		require.NoError(t, err)
		assert.Equal(t, models.ContributionPending, res.Contribution.Status)
		assert.True(t, res.Contribution.Submitted())
		assert.Equal(t, 0, res.ConfirmedCount)
	})

	t.Run("reports confirmed count", func(t *testing.T) {
		f := activeGroup(t)
		res, err := f.ledger.Record(ctx, alice, f.group.ID, 1, amount)
		require.NoError(t, err)
		_, err = f.ledger.Confirm(ctx, collector, res.Contribution.ID)
		require.NoError(t, err)

		res, err = f.ledger.Record(ctx, bob, f.group.ID, 1, amount)
		require.NoError(t, err)
		assert.Equal(t, 1, res.ConfirmedCount)
	})

	t.Run("rejects partial amount", func(t *testing.T) {
		f := activeGroup(t)
		_, err := f.ledger.Record(ctx, alice, f.group.ID, 1, decimal.NewFromInt(500))
		var invalid *models.InvalidInputError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("rejects stale and future rounds", func(t *testing.T) {
		f := activeGroup(t)
		for _, round := range []int{0, 2} {
			_, err := f.ledger.Record(ctx, alice, f.group.ID, round, amount)
			var sv *models.StateViolationError
			assert.ErrorAs(t, err, &sv, "round %d", round)
		}
	})

	t.Run("second submission conflicts", func(t *testing.T) {
		f := activeGroup(t)
		_, err := f.ledger.Record(ctx, alice, f.group.ID, 1, amount)
		require.NoError(t, err)
		_, err = f.ledger.Record(ctx, alice, f.group.ID, 1, amount)
		var conflict *models.ConflictError
		assert.ErrorAs(t, err, &conflict)
	})

	t.Run("role and membership checks", func(t *testing.T) {
		f := activeGroup(t)
		var forbidden *models.ForbiddenError

		_, err := f.ledger.Record(ctx, admin, f.group.ID, 1, amount)
		assert.ErrorAs(t, err, &forbidden, "admins do not contribute")
		_, err = f.ledger.Record(ctx, carol, f.group.ID, 1, amount)
		assert.ErrorAs(t, err, &forbidden, "non-member")

		_, err = f.manager.Suspend(ctx, admin, f.group.ID, bob.ID)
		require.NoError(t, err)
		_, err = f.ledger.Record(ctx, bob, f.group.ID, 1, amount)
		assert.ErrorAs(t, err, &forbidden, "suspended member")
	})

	t.Run("group must be ACTIVE", func(t *testing.T) {
		f := activeGroup(t)
		_, err := f.manager.Hold(ctx, admin, f.group.ID, "audit")
		require.NoError(t, err)
		_, err = f.ledger.Record(ctx, alice, f.group.ID, 1, amount)
		var sv *models.StateViolationError
		assert.ErrorAs(t, err, &sv)

		_, err = f.ledger.Record(ctx, alice, "missing", 1, amount)
		var nf *models.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("member without an obligation gets a new row", func(t *testing.T) {
		f := activeGroup(t)
		err := f.store.WithTx(ctx, func(tx storage.Tx) error {
			return tx.InsertMembership(ctx, &models.Membership{
				GroupID: f.group.ID, UserID: carol.ID, Role: models.RoleMember, Status: models.MembershipActive,
			})
		})
		require.NoError(t, err)

		res, err := f.ledger.Record(ctx, carol, f.group.ID, 1, amount)
		require.NoError(t, err)
		assert.Equal(t, carol.ID, res.Contribution.MemberID)
		assert.True(t, res.Contribution.Submitted())
	})
}

func TestRecordConcurrent(t *testing.T) {
	f := activeGroup(t)
	ctx := context.Background()

	const attempts = 8
	var ok, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			_, err := f.ledger.Record(ctx, alice, f.group.ID, 1, amount)
			var conflict *models.ConflictError
			switch {
			case err == nil:
				ok.Add(1)
			case errors.As(err, &conflict):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(attempts-1), conflicts.Load())

	var created int
	err := f.store.View(ctx, func(r storage.Reader) error {
		events, err := r.ListAuditEvents(ctx, models.AuditFilter{
			GroupID: f.group.ID, ActionTypes: []models.ActionType{models.ActionContributionCreated},
		})
		created = len(events)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created, "losers leave no audit rows")
}

func TestReview(t *testing.T) {
	ctx := context.Background()
	f := activeGroup(t)

	res, err := f.ledger.Record(ctx, alice, f.group.ID, 1, amount)
	require.NoError(t, err)
	id := res.Contribution.ID

	var forbidden *models.ForbiddenError
	_, err = f.ledger.Confirm(ctx, bob, id)
	assert.ErrorAs(t, err, &forbidden, "members cannot review")
	_, err = f.ledger.Confirm(ctx, outsider, id)
	assert.ErrorAs(t, err, &forbidden, "collector must be assigned")

	c, err := f.ledger.Confirm(ctx, collector, id)
	require.NoError(t, err)
	assert.Equal(t, models.ContributionConfirmed, c.Status)
	assert.Equal(t, collector.ID, c.ReviewedBy)

	var conflict *models.ConflictError
	_, err = f.ledger.Confirm(ctx, admin, id)
	assert.ErrorAs(t, err, &conflict, "already confirmed")
	_, err = f.ledger.Reject(ctx, admin, id, "late")
	assert.ErrorAs(t, err, &conflict)

	summary, err := f.ledger.GetRoundSummary(ctx, admin, f.group.ID, 0)
	require.NoError(t, err)
	var bobRow string
	err = f.store.View(ctx, func(r storage.Reader) error {
		bc, err := r.FindContribution(ctx, f.group.ID, bob.ID, 1)
		if bc != nil {
			bobRow = bc.ID
		}
		return err
	})
	require.NoError(t, err)

	var invalid *models.InvalidInputError
	_, err = f.ledger.Reject(ctx, admin, bobRow, "  ")
	assert.ErrorAs(t, err, &invalid)
	c, err = f.ledger.Reject(ctx, admin, bobRow, "wrong account")
	require.NoError(t, err)
	assert.Equal(t, models.ContributionRejected, c.Status)
	assert.Equal(t, "wrong account", c.RejectReason)

	assert.Equal(t, 1, summary.Confirmed)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 2, summary.Expected)
	assert.True(t, summary.Collected.Equal(amount))

	var nf *models.NotFoundError
	_, err = f.ledger.Confirm(ctx, admin, "missing")
	assert.ErrorAs(t, err, &nf)
}

func TestScopedReads(t *testing.T) {
	ctx := context.Background()
	f := activeGroup(t)

	all, err := f.ledger.GetContributions(ctx, collector, f.group.ID, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.ledger.GetContributions(ctx, alice, f.group.ID, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, alice.ID, own[0].MemberID)

	summary, err := f.ledger.GetRoundSummary(ctx, alice, f.group.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Expected)
	assert.Equal(t, 1, summary.Pending)

	var forbidden *models.ForbiddenError
	_, err = f.ledger.GetContributions(ctx, carol, f.group.ID, 1)
	assert.ErrorAs(t, err, &forbidden)
	_, err = f.ledger.GetContributions(ctx, outsider, f.group.ID, 1)
	assert.ErrorAs(t, err, &forbidden)
}
