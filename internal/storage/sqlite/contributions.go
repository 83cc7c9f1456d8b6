package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/equb/internal/models"
)

const contributionColumns = `id, group_id, member_id, round_number, amount, status,
	submitted_at, reviewed_by, reject_reason, created_at, updated_at`

func scanContribution(row scanner) (*models.Contribution, error) {
	c := &models.Contribution{}
	var submittedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.GroupID, &c.MemberID, &c.RoundNumber, &c.Amount, &c.Status,
		&submittedAt, &c.ReviewedBy, &c.RejectReason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.SubmittedAt = fromNullNanos(submittedAt)
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	return c, nil
}

func (t *tx) queryContributions(ctx context.Context, query string, args ...any) ([]*models.Contribution, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*models.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contributions: %w", err)
	}
	return contributions, nil
}

// InsertContribution persists a new contribution.
// A duplicate (group, member, round) surfaces as a ConflictError.
func (t *tx) InsertContribution(ctx context.Context, c *models.Contribution) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.UpdatedAt = c.CreatedAt

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO contributions (`+contributionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.GroupID, c.MemberID, c.RoundNumber, c.Amount, string(c.Status),
		nullNanos(c.SubmittedAt), c.ReviewedBy, c.RejectReason, nanos(c.CreatedAt), nanos(c.UpdatedAt),
	)
	if err != nil {
		return insertErr(err, fmt.Sprintf("contribution for %s in round %d", c.MemberID, c.RoundNumber))
	}
	return nil
}

// GetContribution retrieves a contribution by ID.
func (t *tx) GetContribution(ctx context.Context, contributionID string) (*models.Contribution, error) {
	c, err := scanContribution(t.tx.QueryRowContext(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE id = ?`, contributionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound("contribution not found: %s", contributionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contribution: %w", err)
	}
	return c, nil
}

// FindContribution returns the row for (group, member, round), or nil.
func (t *tx) FindContribution(ctx context.Context, groupID, memberID string, round int) (*models.Contribution, error) {
	c, err := scanContribution(t.tx.QueryRowContext(ctx,
		`SELECT `+contributionColumns+` FROM contributions
		 WHERE group_id = ? AND member_id = ? AND round_number = ?`,
		groupID, memberID, round))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contribution: %w", err)
	}
	return c, nil
}

// ListRoundContributions returns a round's contributions ordered by member.
func (t *tx) ListRoundContributions(ctx context.Context, groupID string, round int) ([]*models.Contribution, error) {
	return t.queryContributions(ctx,
		`SELECT `+contributionColumns+` FROM contributions
		 WHERE group_id = ? AND round_number = ? ORDER BY member_id`,
		groupID, round)
}

// ListContributionsByStatus returns contributions across all groups.
func (t *tx) ListContributionsByStatus(ctx context.Context, statuses ...models.ContributionStatus) ([]*models.Contribution, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	return t.queryContributions(ctx,
		`SELECT `+contributionColumns+` FROM contributions
		 WHERE status IN (`+placeholders(len(statuses))+`)
		 ORDER BY group_id, round_number, member_id`,
		stringArgs(statuses)...)
}

// MarkSubmitted stamps an unsubmitted PENDING obligation.
func (t *tx) MarkSubmitted(ctx context.Context, c *models.Contribution) error {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`UPDATE contributions SET submitted_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND submitted_at IS NULL`,
		nanos(now), nanos(now), c.ID, string(models.ContributionPending),
	)
	if err != nil {
		return fmt.Errorf("failed to submit contribution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrConflict("contribution %s was already submitted", c.ID)
	}
	c.SubmittedAt = &now
	c.UpdatedAt = now
	return nil
}

// TransitionContribution moves c from status from to c.Status.
func (t *tx) TransitionContribution(ctx context.Context, c *models.Contribution, from models.ContributionStatus) error {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`UPDATE contributions SET status = ?, reviewed_by = ?, reject_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(c.Status), c.ReviewedBy, c.RejectReason, nanos(now), c.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update contribution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrConflict("contribution %s is no longer %s", c.ID, from)
	}
	c.UpdatedAt = now
	return nil
}

// SettleContributions marks CONFIRMED rows SETTLED.
func (t *tx) SettleContributions(ctx context.Context, contributionIDs []string) (int, error) {
	if len(contributionIDs) == 0 {
		return 0, nil
	}
	args := []any{string(models.ContributionSettled), nanos(time.Now()), string(models.ContributionConfirmed)}
	args = append(args, stringArgs(contributionIDs)...)

	res, err := t.tx.ExecContext(ctx,
		`UPDATE contributions SET status = ?, updated_at = ?
		 WHERE status = ? AND id IN (`+placeholders(len(contributionIDs))+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to settle contributions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count settled contributions: %w", err)
	}
	return int(n), nil
}
