package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/auth"
	"github.com/mmynk/equb/internal/contribution"
	"github.com/mmynk/equb/internal/health"
	"github.com/mmynk/equb/internal/lifecycle"
	"github.com/mmynk/equb/internal/middleware"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/payout"
	"github.com/mmynk/equb/internal/reconcile"
	"github.com/mmynk/equb/internal/storage"
	"github.com/mmynk/equb/internal/storage/sqlite"
)

var (
	admin     = models.Actor{ID: "admin", Role: models.RoleAdmin}
	collector = models.Actor{ID: "collector", Role: models.RoleCollector}
	alice     = models.Actor{ID: "alice", Role: models.RoleMember}
	bob       = models.Actor{ID: "bob", Role: models.RoleMember}
	amount    = decimal.NewFromInt(500)
)

type testEnv struct {
	server *httptest.Server
	jwt    *auth.JWTManager
	status *health.Status
}

// setupTestServer serves the ledger with the production interceptor chain
// over a temp SQLite database.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store := sqlite.OpenTest(t)
	recorder := audit.NewRecorder(nil)
	status := health.NewStatus(nil, nil)
	manager := lifecycle.NewManager(store, lifecycle.WithRecorder(recorder))
	svc := NewLedgerService(
		manager,
		contribution.NewLedger(store, recorder, nil, nil),
		payout.NewEngine(store, manager, recorder, nil, nil),
		reconcile.NewEngine(store, status, nil, nil),
		audit.NewFeed(store, nil),
		nil,
	)

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	path, handler := svc.Handler(connect.WithInterceptors(
		middleware.RequireActor(jwtManager),
		middleware.LoggingInterceptor(nil),
		middleware.WriteGuard(status, FinancialWriteProcedures...),
	))

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{server: server, jwt: jwtManager, status: status}
}

// call invokes procedure as actor. A zero actor sends no token.
func call[Req, Res any](t *testing.T, env *testEnv, procedure string, actor models.Actor, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](http.DefaultClient, env.server.URL+procedure, connect.WithCodec(Codec{}))
	req := connect.NewRequest(msg)
	if actor.ID != "" {
		token, err := env.jwt.Generate(actor)
		require.NoError(t, err)
		req.Header().Set("Authorization", "Bearer "+token)
	}
	res, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func assertCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, connect.CodeOf(err), "error: %v", err)
}

// activeGroup creates and activates a two-round group of alice and bob.
func activeGroup(t *testing.T, env *testEnv) string {
	t.Helper()
	created, err := call[CreateGroupRequest, GroupResponse](t, env, CreateGroupProcedure, admin, &CreateGroupRequest{
		Name: "Merkato", TotalRounds: 2, ContributionAmount: amount, Currency: "ETB",
	})
	require.NoError(t, err)
	groupID := created.Group.ID

	for _, m := range []*MemberRequest{
		{GroupID: groupID, UserID: alice.ID},
		{GroupID: groupID, UserID: bob.ID},
		{GroupID: groupID, UserID: collector.ID, Role: models.RoleCollector},
	} {
		_, err := call[MemberRequest, MembershipResponse](t, env, AddMemberProcedure, admin, m)
		require.NoError(t, err)
	}

	activated, err := call[GroupRequest, GroupResponse](t, env, ActivateGroupProcedure, admin, &GroupRequest{GroupID: groupID})
	require.NoError(t, err)
	require.Equal(t, models.GroupActive, activated.Group.Status)
	require.Equal(t, 1, activated.Group.CurrentRound)
	return groupID
}

func record(t *testing.T, env *testEnv, actor models.Actor, groupID string, round int) (*RecordContributionResponse, error) {
	t.Helper()
	return call[RecordContributionRequest, RecordContributionResponse](t, env, RecordContributionProcedure, actor,
		&RecordContributionRequest{GroupID: groupID, Round: round, Amount: amount})
}

func TestLedgerService_RoundTrip(t *testing.T) {
	env := setupTestServer(t)
	groupID := activeGroup(t, env)

	var ids []string
	for _, m := range []models.Actor{alice, bob} {
		res, err := record(t, env, m, groupID, 1)
		require.NoError(t, err)
		assert.Equal(t, models.ContributionPending, res.Contribution.Status)
		assert.NotNil(t, res.Contribution.SubmittedAt)
		ids = append(ids, res.Contribution.ID)
	}

	_, err := record(t, env, alice, groupID, 1)
	assertCode(t, err, connect.CodeAlreadyExists)

	_, err = call[ReviewRequest, ContributionResponse](t, env, ConfirmContributionProcedure, bob,
		&ReviewRequest{ContributionID: ids[0]})
	assertCode(t, err, connect.CodePermissionDenied)

	_, err = call[ReviewRequest, ContributionResponse](t, env, RejectContributionProcedure, collector,
		&ReviewRequest{ContributionID: ids[0]})
	assertCode(t, err, connect.CodeInvalidArgument)

	for _, id := range ids {
		res, err := call[ReviewRequest, ContributionResponse](t, env, ConfirmContributionProcedure, collector,
			&ReviewRequest{ContributionID: id})
		require.NoError(t, err)
		assert.Equal(t, models.ContributionConfirmed, res.Contribution.Status)
		assert.Equal(t, collector.ID, res.Contribution.ReviewedBy)
	}

	summary, err := call[RoundRequest, RoundSummaryResponse](t, env, GetRoundSummaryProcedure, collector,
		&RoundRequest{GroupID: groupID})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Summary.Confirmed)
	assert.True(t, summary.Summary.Collected.Equal(decimal.NewFromInt(1000)))

	mine, err := call[RoundRequest, ContributionsResponse](t, env, GetContributionsProcedure, alice,
		&RoundRequest{GroupID: groupID, Round: 1})
	require.NoError(t, err)
	require.Len(t, mine.Contributions, 1)
	assert.Equal(t, alice.ID, mine.Contributions[0].MemberID)

	eligibility, err := call[GroupRequest, payout.Eligibility](t, env, CheckEligibilityProcedure, collector,
		&GroupRequest{GroupID: groupID})
	require.NoError(t, err)
	assert.True(t, eligibility.CanExecute)
	assert.Equal(t, payout.Ready, eligibility.Status)

	paid, err := call[GroupRequest, ExecutePayoutResponse](t, env, ExecutePayoutProcedure, collector,
		&GroupRequest{GroupID: groupID})
	require.NoError(t, err)
	assert.Equal(t, 2, paid.SettledCount)
	assert.True(t, paid.Payout.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 2, paid.Group.CurrentRound)
	assert.False(t, paid.Completed)

	report, err := call[Empty, reconcile.IntegrityReport](t, env, IntegrityCheckProcedure, admin, &Empty{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.CheckedPayouts)
	assert.Zero(t, report.DiscrepancyCount)

	drift, err := call[GroupRequest, reconcile.DriftReport](t, env, DetectDriftProcedure, admin,
		&GroupRequest{GroupID: groupID})
	require.NoError(t, err)
	assert.False(t, drift.Drifted, "fields: %+v", drift.Fields)

	global, err := call[Empty, reconcile.GlobalMetrics](t, env, GlobalMetricsProcedure, admin, &Empty{})
	require.NoError(t, err)
	assert.Equal(t, 1, global.PayoutCount)
	assert.False(t, global.Degraded)

	timeline, err := call[GroupRequest, FeedResponse](t, env, GroupTimelineProcedure, alice,
		&GroupRequest{GroupID: groupID})
	require.NoError(t, err)
	require.NotEmpty(t, timeline.Events)
	for _, ev := range timeline.Events {
		assert.Empty(t, ev.IPAddress, "members never see request metadata")
	}

	activity, err := call[ActivityRequest, FeedResponse](t, env, MyActivityProcedure, bob, &ActivityRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, activity.Events)

	adminLog, err := call[AdminLogRequest, FeedResponse](t, env, AdminLogProcedure, admin,
		&AdminLogRequest{GroupID: groupID})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(adminLog.Events), len(timeline.Events))
}

func TestLedgerService_DegradedGuard(t *testing.T) {
	env := setupTestServer(t)
	groupID := activeGroup(t, env)

	env.status.MarkDegraded("integrity check failed")

	_, err := record(t, env, alice, groupID, 1)
	assertCode(t, err, connect.CodeUnavailable)

	_, err = call[GroupRequest, ExecutePayoutResponse](t, env, ExecutePayoutProcedure, admin,
		&GroupRequest{GroupID: groupID})
	assertCode(t, err, connect.CodeUnavailable)

	// Reads and non-financial writes still pass.
	_, err = call[RoundRequest, RoundSummaryResponse](t, env, GetRoundSummaryProcedure, admin,
		&RoundRequest{GroupID: groupID})
	require.NoError(t, err)
	held, err := call[GroupReasonRequest, GroupResponse](t, env, HoldGroupProcedure, admin,
		&GroupReasonRequest{GroupID: groupID, Reason: "audit"})
	require.NoError(t, err)
	assert.Equal(t, models.GroupOnHold, held.Group.Status)
	_, err = call[GroupRequest, GroupResponse](t, env, ResumeGroupProcedure, admin, &GroupRequest{GroupID: groupID})
	require.NoError(t, err)

	env.status.Restore()

	_, err = record(t, env, alice, groupID, 1)
	require.NoError(t, err)
}

func TestLedgerService_Errors(t *testing.T) {
	env := setupTestServer(t)
	groupID := activeGroup(t, env)

	t.Run("missing token is unauthenticated", func(t *testing.T) {
		_, err := call[GroupRequest, GroupResponse](t, env, ActivateGroupProcedure, models.Actor{},
			&GroupRequest{GroupID: groupID})
		assertCode(t, err, connect.CodeUnauthenticated)
	})

	t.Run("unknown group is not found", func(t *testing.T) {
		_, err := call[GroupRequest, GroupResponse](t, env, ActivateGroupProcedure, admin,
			&GroupRequest{GroupID: "missing"})
		assertCode(t, err, connect.CodeNotFound)
	})

	t.Run("illegal transition is a failed precondition", func(t *testing.T) {
		_, err := call[GroupRequest, GroupResponse](t, env, ActivateGroupProcedure, admin,
			&GroupRequest{GroupID: groupID})
		assertCode(t, err, connect.CodeFailedPrecondition)
	})

	t.Run("reconciliation procedures are admin only", func(t *testing.T) {
		_, err := call[Empty, reconcile.IntegrityReport](t, env, IntegrityCheckProcedure, alice, &Empty{})
		assertCode(t, err, connect.CodePermissionDenied)
		_, err = call[GroupRequest, payout.Eligibility](t, env, CheckEligibilityProcedure, bob,
			&GroupRequest{GroupID: groupID})
		assertCode(t, err, connect.CodePermissionDenied)
	})
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want connect.Code
	}{
		{models.ErrNotFound("group"), connect.CodeNotFound},
		{models.ErrForbidden("role"), connect.CodePermissionDenied},
		{models.ErrStateViolation("status"), connect.CodeFailedPrecondition},
		{models.ErrInvalidInput("amount"), connect.CodeInvalidArgument},
		{models.ErrConflict("dup"), connect.CodeAlreadyExists},
		{&models.ReconciliationError{}, connect.CodeInternal},
		{fmt.Errorf("%w: begin", storage.ErrTxTimeout), connect.CodeUnavailable},
		{fmt.Errorf("wrapped: %w", models.ErrConflict("dup")), connect.CodeAlreadyExists},
		{errors.New("disk on fire"), connect.CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeOf(tt.err), "%v", tt.err)
	}

	passthrough := connect.NewError(connect.CodeUnavailable, errors.New("degraded"))
	assert.Same(t, passthrough, toConnectError(passthrough))
}
