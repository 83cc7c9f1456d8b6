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

const payoutColumns = `id, group_id, round_number, recipient_user_id, amount, status,
	executed_at, executed_by, created_at`

func scanPayout(row scanner) (*models.Payout, error) {
	p := &models.Payout{}
	var executedAt sql.NullInt64
	var createdAt int64
	if err := row.Scan(&p.ID, &p.GroupID, &p.RoundNumber, &p.RecipientUserID, &p.Amount, &p.Status,
		&executedAt, &p.ExecutedBy, &createdAt); err != nil {
		return nil, err
	}
	p.ExecutedAt = fromNullNanos(executedAt)
	p.CreatedAt = fromNanos(createdAt)
	return p, nil
}

func (t *tx) queryPayouts(ctx context.Context, query string, args ...any) ([]*models.Payout, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payouts: %w", err)
	}
	return payouts, nil
}

// InsertPayout persists a new payout. (group, round) is unique.
func (t *tx) InsertPayout(ctx context.Context, p *models.Payout) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO payouts (`+payoutColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GroupID, p.RoundNumber, p.RecipientUserID, p.Amount, string(p.Status),
		nullNanos(p.ExecutedAt), p.ExecutedBy, nanos(p.CreatedAt),
	)
	if err != nil {
		return insertErr(err, fmt.Sprintf("payout for round %d of group %s", p.RoundNumber, p.GroupID))
	}
	return nil
}

// FindRoundPayout returns the payout for (group, round), or nil.
func (t *tx) FindRoundPayout(ctx context.Context, groupID string, round int) (*models.Payout, error) {
	p, err := scanPayout(t.tx.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE group_id = ? AND round_number = ?`,
		groupID, round))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payout: %w", err)
	}
	return p, nil
}

// ListPayouts returns a group's payouts ordered by round.
func (t *tx) ListPayouts(ctx context.Context, groupID string) ([]*models.Payout, error) {
	return t.queryPayouts(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE group_id = ? ORDER BY round_number`,
		groupID)
}

// ListPayoutsByStatus returns payouts across all groups.
func (t *tx) ListPayoutsByStatus(ctx context.Context, statuses ...models.PayoutStatus) ([]*models.Payout, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	return t.queryPayouts(ctx,
		`SELECT `+payoutColumns+` FROM payouts
		 WHERE status IN (`+placeholders(len(statuses))+`)
		 ORDER BY group_id, round_number`,
		stringArgs(statuses)...)
}

// ExecuteScheduledPayout promotes a scheduled payout row to p's values.
func (t *tx) ExecuteScheduledPayout(ctx context.Context, p *models.Payout) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE payouts SET recipient_user_id = ?, amount = ?, status = ?, executed_at = ?, executed_by = ?
		 WHERE id = ? AND status IN (?, ?)`,
		p.RecipientUserID, p.Amount, string(p.Status), nullNanos(p.ExecutedAt), p.ExecutedBy,
		p.ID, string(models.PayoutPending), string(models.PayoutScheduled),
	)
	if err != nil {
		return fmt.Errorf("failed to execute payout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrConflict("payout %s was already executed", p.ID)
	}
	return nil
}
