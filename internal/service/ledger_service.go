// Package service exposes the ledger core over Connect.
package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/equb/internal/audit"
	"github.com/mmynk/equb/internal/contribution"
	"github.com/mmynk/equb/internal/lifecycle"
	"github.com/mmynk/equb/internal/middleware"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/payout"
	"github.com/mmynk/equb/internal/reconcile"
)

// ServiceName is the fully-qualified name of the ledger service.
const ServiceName = "equb.v1.LedgerService"

// Procedure paths.
const (
	CreateGroupProcedure         = "/" + ServiceName + "/CreateGroup"
	AddMemberProcedure           = "/" + ServiceName + "/AddMember"
	ChangeRoleProcedure          = "/" + ServiceName + "/ChangeRole"
	SuspendMemberProcedure       = "/" + ServiceName + "/SuspendMember"
	ReinstateMemberProcedure     = "/" + ServiceName + "/ReinstateMember"
	ActivateGroupProcedure       = "/" + ServiceName + "/ActivateGroup"
	ProgressRoundProcedure       = "/" + ServiceName + "/ProgressRound"
	HoldGroupProcedure           = "/" + ServiceName + "/HoldGroup"
	ResumeGroupProcedure         = "/" + ServiceName + "/ResumeGroup"
	TerminateGroupProcedure      = "/" + ServiceName + "/TerminateGroup"
	RecordContributionProcedure  = "/" + ServiceName + "/RecordContribution"
	ConfirmContributionProcedure = "/" + ServiceName + "/ConfirmContribution"
	RejectContributionProcedure  = "/" + ServiceName + "/RejectContribution"
	GetContributionsProcedure    = "/" + ServiceName + "/GetContributions"
	GetRoundSummaryProcedure     = "/" + ServiceName + "/GetRoundSummary"
	ExecutePayoutProcedure       = "/" + ServiceName + "/ExecutePayout"
	CheckEligibilityProcedure    = "/" + ServiceName + "/CheckEligibility"
	GlobalMetricsProcedure       = "/" + ServiceName + "/GlobalMetrics"
	IntegrityCheckProcedure      = "/" + ServiceName + "/IntegrityCheck"
	DetectDriftProcedure         = "/" + ServiceName + "/DetectDrift"
	GroupTimelineProcedure       = "/" + ServiceName + "/GroupTimeline"
	MyActivityProcedure          = "/" + ServiceName + "/MyActivity"
	AdminLogProcedure            = "/" + ServiceName + "/AdminLog"
)

// FinancialWriteProcedures are blocked by middleware.WriteGuard while the
// ledger is degraded.
var FinancialWriteProcedures = []string{
	RecordContributionProcedure,
	ConfirmContributionProcedure,
	RejectContributionProcedure,
	ExecutePayoutProcedure,
}

// LedgerService implements equb.v1.LedgerService on top of the core engines.
type LedgerService struct {
	groups        *lifecycle.Manager
	contributions *contribution.Ledger
	payouts       *payout.Engine
	reconciler    *reconcile.Engine
	feed          *audit.Feed
	logger        *slog.Logger
}

// NewLedgerService creates a LedgerService. logger may be nil.
func NewLedgerService(
	groups *lifecycle.Manager,
	contributions *contribution.Ledger,
	payouts *payout.Engine,
	reconciler *reconcile.Engine,
	feed *audit.Feed,
	logger *slog.Logger,
) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		groups:        groups,
		contributions: contributions,
		payouts:       payouts,
		reconciler:    reconciler,
		feed:          feed,
		logger:        logger,
	}
}

// Handler returns the path prefix and handler serving every procedure.
// The JSON codec is always installed; opts typically carry interceptors.
func (s *LedgerService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateGroupProcedure, unary(CreateGroupProcedure, s.CreateGroup, opts))
	mux.Handle(AddMemberProcedure, unary(AddMemberProcedure, s.AddMember, opts))
	mux.Handle(ChangeRoleProcedure, unary(ChangeRoleProcedure, s.ChangeRole, opts))
	mux.Handle(SuspendMemberProcedure, unary(SuspendMemberProcedure, s.SuspendMember, opts))
	mux.Handle(ReinstateMemberProcedure, unary(ReinstateMemberProcedure, s.ReinstateMember, opts))
	mux.Handle(ActivateGroupProcedure, unary(ActivateGroupProcedure, s.ActivateGroup, opts))
	mux.Handle(ProgressRoundProcedure, unary(ProgressRoundProcedure, s.ProgressRound, opts))
	mux.Handle(HoldGroupProcedure, unary(HoldGroupProcedure, s.HoldGroup, opts))
	mux.Handle(ResumeGroupProcedure, unary(ResumeGroupProcedure, s.ResumeGroup, opts))
	mux.Handle(TerminateGroupProcedure, unary(TerminateGroupProcedure, s.TerminateGroup, opts))
	mux.Handle(RecordContributionProcedure, unary(RecordContributionProcedure, s.RecordContribution, opts))
	mux.Handle(ConfirmContributionProcedure, unary(ConfirmContributionProcedure, s.ConfirmContribution, opts))
	mux.Handle(RejectContributionProcedure, unary(RejectContributionProcedure, s.RejectContribution, opts))
	mux.Handle(GetContributionsProcedure, unary(GetContributionsProcedure, s.GetContributions, opts))
	mux.Handle(GetRoundSummaryProcedure, unary(GetRoundSummaryProcedure, s.GetRoundSummary, opts))
	mux.Handle(ExecutePayoutProcedure, unary(ExecutePayoutProcedure, s.ExecutePayout, opts))
	mux.Handle(CheckEligibilityProcedure, unary(CheckEligibilityProcedure, s.CheckEligibility, opts))
	mux.Handle(GlobalMetricsProcedure, unary(GlobalMetricsProcedure, s.GlobalMetrics, opts))
	mux.Handle(IntegrityCheckProcedure, unary(IntegrityCheckProcedure, s.IntegrityCheck, opts))
	mux.Handle(DetectDriftProcedure, unary(DetectDriftProcedure, s.DetectDrift, opts))
	mux.Handle(GroupTimelineProcedure, unary(GroupTimelineProcedure, s.GroupTimeline, opts))
	mux.Handle(MyActivityProcedure, unary(MyActivityProcedure, s.MyActivity, opts))
	mux.Handle(AdminLogProcedure, unary(AdminLogProcedure, s.AdminLog, opts))
	return "/" + ServiceName + "/", mux
}

// unary adapts a core call to a Connect handler: it resolves the actor from
// the context and maps core errors to Connect codes.
func unary[Req, Res any](
	procedure string,
	fn func(context.Context, models.Actor, *Req) (*Res, error),
	opts []connect.HandlerOption,
) http.Handler {
	return connect.NewUnaryHandler(procedure,
		func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
			actor, ok := middleware.GetActor(ctx)
			if !ok {
				return nil, connect.NewError(connect.CodeUnauthenticated, ErrNoActor)
			}
			res, err := fn(ctx, actor, req.Msg)
			if err != nil {
				return nil, toConnectError(err)
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	)
}

// requireRole guards procedures whose core engine does not take an actor.
func requireRole(actor models.Actor, op string, roles ...models.Role) error {
	if !actor.Is(roles...) {
		return models.ErrForbidden("%s not permitted for role %s", op, actor.Role)
	}
	return nil
}

// Group lifecycle.

func (s *LedgerService) CreateGroup(ctx context.Context, actor models.Actor, req *CreateGroupRequest) (*GroupResponse, error) {
	g, err := s.groups.Create(ctx, actor, models.GroupSpec{
		Name:               req.Name,
		TotalRounds:        req.TotalRounds,
		ContributionAmount: req.ContributionAmount,
		Currency:           req.Currency,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Group created", "group_id", g.ID, "name", g.Name)
	return &GroupResponse{Group: toGroup(g)}, nil
}

func (s *LedgerService) ActivateGroup(ctx context.Context, actor models.Actor, req *GroupRequest) (*GroupResponse, error) {
	return groupResponse(s.groups.Activate(ctx, actor, req.GroupID))
}

func (s *LedgerService) ProgressRound(ctx context.Context, actor models.Actor, req *GroupRequest) (*GroupResponse, error) {
	return groupResponse(s.groups.ProgressRound(ctx, actor, req.GroupID))
}

func (s *LedgerService) HoldGroup(ctx context.Context, actor models.Actor, req *GroupReasonRequest) (*GroupResponse, error) {
	return groupResponse(s.groups.Hold(ctx, actor, req.GroupID, req.Reason))
}

func (s *LedgerService) ResumeGroup(ctx context.Context, actor models.Actor, req *GroupRequest) (*GroupResponse, error) {
	return groupResponse(s.groups.Resume(ctx, actor, req.GroupID))
}

func (s *LedgerService) TerminateGroup(ctx context.Context, actor models.Actor, req *GroupReasonRequest) (*GroupResponse, error) {
	return groupResponse(s.groups.Terminate(ctx, actor, req.GroupID, req.Reason))
}

func groupResponse(g *models.Group, err error) (*GroupResponse, error) {
	if err != nil {
		return nil, err
	}
	return &GroupResponse{Group: toGroup(g)}, nil
}

// Membership administration.

func (s *LedgerService) AddMember(ctx context.Context, actor models.Actor, req *MemberRequest) (*MembershipResponse, error) {
	role := req.Role
	if role == "" {
		role = models.RoleMember
	}
	return membershipResponse(s.groups.AddMember(ctx, actor, req.GroupID, req.UserID, role))
}

func (s *LedgerService) ChangeRole(ctx context.Context, actor models.Actor, req *MemberRequest) (*MembershipResponse, error) {
	return membershipResponse(s.groups.ChangeRole(ctx, actor, req.GroupID, req.UserID, req.Role))
}

func (s *LedgerService) SuspendMember(ctx context.Context, actor models.Actor, req *MemberRequest) (*MembershipResponse, error) {
	return membershipResponse(s.groups.Suspend(ctx, actor, req.GroupID, req.UserID))
}

func (s *LedgerService) ReinstateMember(ctx context.Context, actor models.Actor, req *MemberRequest) (*MembershipResponse, error) {
	return membershipResponse(s.groups.Reinstate(ctx, actor, req.GroupID, req.UserID))
}

func membershipResponse(m *models.Membership, err error) (*MembershipResponse, error) {
	if err != nil {
		return nil, err
	}
	return &MembershipResponse{Membership: toMembership(m)}, nil
}

// Contributions.

func (s *LedgerService) RecordContribution(ctx context.Context, actor models.Actor, req *RecordContributionRequest) (*RecordContributionResponse, error) {
	rec, err := s.contributions.Record(ctx, actor, req.GroupID, req.Round, req.Amount)
	if err != nil {
		return nil, err
	}
	return &RecordContributionResponse{
		Contribution:   toContribution(rec.Contribution),
		ConfirmedCount: rec.ConfirmedCount,
	}, nil
}

func (s *LedgerService) ConfirmContribution(ctx context.Context, actor models.Actor, req *ReviewRequest) (*ContributionResponse, error) {
	return contributionResponse(s.contributions.Confirm(ctx, actor, req.ContributionID))
}

func (s *LedgerService) RejectContribution(ctx context.Context, actor models.Actor, req *ReviewRequest) (*ContributionResponse, error) {
	return contributionResponse(s.contributions.Reject(ctx, actor, req.ContributionID, req.Reason))
}

func contributionResponse(c *models.Contribution, err error) (*ContributionResponse, error) {
	if err != nil {
		return nil, err
	}
	return &ContributionResponse{Contribution: toContribution(c)}, nil
}

func (s *LedgerService) GetContributions(ctx context.Context, actor models.Actor, req *RoundRequest) (*ContributionsResponse, error) {
	list, err := s.contributions.GetContributions(ctx, actor, req.GroupID, req.Round)
	if err != nil {
		return nil, err
	}
	out := make([]*Contribution, len(list))
	for i, c := range list {
		out[i] = toContribution(c)
	}
	return &ContributionsResponse{Contributions: out}, nil
}

func (s *LedgerService) GetRoundSummary(ctx context.Context, actor models.Actor, req *RoundRequest) (*RoundSummaryResponse, error) {
	summary, err := s.contributions.GetRoundSummary(ctx, actor, req.GroupID, req.Round)
	if err != nil {
		return nil, err
	}
	return &RoundSummaryResponse{Summary: toRoundSummary(summary)}, nil
}

// Payouts.

func (s *LedgerService) ExecutePayout(ctx context.Context, actor models.Actor, req *GroupRequest) (*ExecutePayoutResponse, error) {
	res, err := s.payouts.Execute(ctx, actor, req.GroupID)
	if err != nil {
		return nil, err
	}
	return &ExecutePayoutResponse{
		Payout:       toPayout(res.Payout),
		Group:        toGroup(res.Group),
		SettledCount: res.SettledCount,
		Completed:    res.Completed,
	}, nil
}

func (s *LedgerService) CheckEligibility(ctx context.Context, actor models.Actor, req *GroupRequest) (*payout.Eligibility, error) {
	if err := requireRole(actor, "check eligibility", models.RoleAdmin, models.RoleCollector); err != nil {
		return nil, err
	}
	return s.payouts.CheckEligibility(ctx, req.GroupID)
}

// Reconciliation. These engines read globally and take no actor, so the
// transport restricts them to ADMIN.

func (s *LedgerService) GlobalMetrics(ctx context.Context, actor models.Actor, _ *Empty) (*reconcile.GlobalMetrics, error) {
	if err := requireRole(actor, "global metrics", models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.reconciler.GlobalMetrics(ctx)
}

func (s *LedgerService) IntegrityCheck(ctx context.Context, actor models.Actor, _ *Empty) (*reconcile.IntegrityReport, error) {
	if err := requireRole(actor, "integrity check", models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.reconciler.IntegrityCheck(ctx)
}

func (s *LedgerService) DetectDrift(ctx context.Context, actor models.Actor, req *GroupRequest) (*reconcile.DriftReport, error) {
	if err := requireRole(actor, "drift detection", models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.reconciler.DetectDrift(ctx, req.GroupID)
}

// Audit feeds.

func (s *LedgerService) GroupTimeline(ctx context.Context, actor models.Actor, req *GroupRequest) (*FeedResponse, error) {
	return feedResponse(s.feed.GroupTimeline(ctx, actor, req.GroupID))
}

func (s *LedgerService) MyActivity(ctx context.Context, actor models.Actor, req *ActivityRequest) (*FeedResponse, error) {
	return feedResponse(s.feed.PersonalActivity(ctx, actor, req.Limit))
}

func (s *LedgerService) AdminLog(ctx context.Context, actor models.Actor, req *AdminLogRequest) (*FeedResponse, error) {
	return feedResponse(s.feed.AdminLog(ctx, actor, models.AuditFilter{
		GroupID:         req.GroupID,
		InvolvingUserID: req.UserID,
		Limit:           req.Limit,
	}))
}

func feedResponse(events []audit.View, err error) (*FeedResponse, error) {
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []audit.View{}
	}
	return &FeedResponse{Events: events}, nil
}
