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

const groupColumns = `id, name, status, current_round, total_rounds, contribution_amount,
	currency, created_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*models.Group, error) {
	g := &models.Group{}
	var createdAt, updatedAt int64
	if err := row.Scan(&g.ID, &g.Name, &g.Status, &g.CurrentRound, &g.TotalRounds,
		&g.ContributionAmount, &g.Currency, &g.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	g.CreatedAt = fromNanos(createdAt)
	g.UpdatedAt = fromNanos(updatedAt)
	return g, nil
}

// InsertGroup persists a new group. ID and timestamps are generated when unset.
func (t *tx) InsertGroup(ctx context.Context, g *models.Group) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	g.UpdatedAt = g.CreatedAt

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO equb_groups (`+groupColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, string(g.Status), g.CurrentRound, g.TotalRounds, g.ContributionAmount,
		g.Currency, g.CreatedBy, nanos(g.CreatedAt), nanos(g.UpdatedAt),
	)
	if err != nil {
		return insertErr(err, "group "+g.ID)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (t *tx) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	g, err := scanGroup(t.tx.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM equb_groups WHERE id = ?`, groupID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound("group not found: %s", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

// ListGroups retrieves all groups ordered by creation time.
func (t *tx) ListGroups(ctx context.Context) ([]*models.Group, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM equb_groups ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}
	return groups, nil
}

// UpdateGroupState writes the group's status and current round.
func (t *tx) UpdateGroupState(ctx context.Context, g *models.Group) error {
	g.UpdatedAt = time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`UPDATE equb_groups SET status = ?, current_round = ?, updated_at = ? WHERE id = ?`,
		string(g.Status), g.CurrentRound, nanos(g.UpdatedAt), g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound("group not found: %s", g.ID)
	}
	return nil
}
