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

const membershipColumns = `id, group_id, user_id, role, status, joined_at`

func scanMembership(row scanner) (*models.Membership, error) {
	m := &models.Membership{}
	var joinedAt int64
	if err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.Status, &joinedAt); err != nil {
		return nil, err
	}
	m.JoinedAt = fromNanos(joinedAt)
	return m, nil
}

// InsertMembership persists a new membership. (group_id, user_id) is unique.
func (t *tx) InsertMembership(ctx context.Context, m *models.Membership) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO memberships (`+membershipColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.UserID, string(m.Role), string(m.Status), nanos(m.JoinedAt),
	)
	if err != nil {
		return insertErr(err, fmt.Sprintf("membership for %s in group %s", m.UserID, m.GroupID))
	}
	return nil
}

// GetMembership retrieves the membership of a user in a group.
func (t *tx) GetMembership(ctx context.Context, groupID, userID string) (*models.Membership, error) {
	m, err := scanMembership(t.tx.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE group_id = ? AND user_id = ?`,
		groupID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound("membership not found: %s in group %s", userID, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// ListMemberships returns every membership of a group in rotation order.
func (t *tx) ListMemberships(ctx context.Context, groupID string) ([]*models.Membership, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE group_id = ? ORDER BY joined_at, user_id`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}
	return memberships, nil
}

// UpdateMembership writes role and status.
func (t *tx) UpdateMembership(ctx context.Context, m *models.Membership) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE memberships SET role = ?, status = ? WHERE id = ?`,
		string(m.Role), string(m.Status), m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound("membership not found: %s", m.ID)
	}
	return nil
}
