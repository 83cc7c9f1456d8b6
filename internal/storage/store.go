// Package storage provides abstractions for persistent ledger storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/equb/internal/models"
)

// ErrTxTimeout is returned when a transaction exceeds the store's timeout.
// It is an operational failure and safe to retry.
var ErrTxTimeout = errors.New("ledger transaction timed out")

// Store is the transactional ledger store.
//
// Every mutating operation runs inside WithTx, which executes fn in one
// serializable transaction and commits only if fn returns nil. Reads that
// need a consistent snapshot run inside View.
type Store interface {
	// WithTx runs fn inside a read-write transaction.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn inside a transaction that is always rolled back.
	View(ctx context.Context, fn func(r Reader) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Reader is the read side of a transaction. Lookups of a single entity
// return a *models.NotFoundError when the row is absent.
type Reader interface {
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]*models.Group, error)

	GetMembership(ctx context.Context, groupID, userID string) (*models.Membership, error)
	// ListMemberships returns every membership of a group ordered by (joined_at, user_id).
	ListMemberships(ctx context.Context, groupID string) ([]*models.Membership, error)

	GetContribution(ctx context.Context, contributionID string) (*models.Contribution, error)
	// FindContribution returns nil, nil when no row exists for the key.
	FindContribution(ctx context.Context, groupID, memberID string, round int) (*models.Contribution, error)
	ListRoundContributions(ctx context.Context, groupID string, round int) ([]*models.Contribution, error)
	ListContributionsByStatus(ctx context.Context, statuses ...models.ContributionStatus) ([]*models.Contribution, error)

	// FindRoundPayout returns nil, nil when the round has no payout row.
	FindRoundPayout(ctx context.Context, groupID string, round int) (*models.Payout, error)
	// ListPayouts returns a group's payouts ordered by round.
	ListPayouts(ctx context.Context, groupID string) ([]*models.Payout, error)
	// ListPayoutsByStatus returns payouts across all groups ordered by (group_id, round).
	ListPayoutsByStatus(ctx context.Context, statuses ...models.PayoutStatus) ([]*models.Payout, error)

	// ListAuditEvents returns matching events ordered by (timestamp, seq).
	ListAuditEvents(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error)
}

// Tx is a handle bound to an open read-write transaction. It can only be
// obtained inside Store.WithTx, so helpers that take a Tx cannot run
// outside a transaction.
type Tx interface {
	Reader

	InsertGroup(ctx context.Context, group *models.Group) error
	// UpdateGroupState writes status and current round.
	UpdateGroupState(ctx context.Context, group *models.Group) error

	InsertMembership(ctx context.Context, m *models.Membership) error
	UpdateMembership(ctx context.Context, m *models.Membership) error

	InsertContribution(ctx context.Context, c *models.Contribution) error
	// MarkSubmitted stamps an unsubmitted PENDING obligation. It returns a
	// *models.ConflictError when the row was already submitted or reviewed.
	MarkSubmitted(ctx context.Context, c *models.Contribution) error
	// TransitionContribution moves a contribution from one status to another.
	// It returns a *models.ConflictError when the row is no longer in from.
	TransitionContribution(ctx context.Context, c *models.Contribution, from models.ContributionStatus) error
	// SettleContributions marks the given CONFIRMED rows SETTLED and returns
	// how many rows changed.
	SettleContributions(ctx context.Context, contributionIDs []string) (int, error)

	InsertPayout(ctx context.Context, p *models.Payout) error
	// ExecuteScheduledPayout promotes a PENDING/SCHEDULED payout to EXECUTED
	// with the given recipient and amount. It returns a *models.ConflictError
	// when the row was already executed.
	ExecuteScheduledPayout(ctx context.Context, p *models.Payout) error

	// AppendAuditEvent inserts event and assigns its Seq.
	AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error
}
