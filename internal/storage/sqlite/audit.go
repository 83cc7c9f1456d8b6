package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/equb/internal/models"
)

const auditColumns = `seq, id, ts, actor_user_id, actor_role, action_type, entity_type, entity_id,
	group_id, subject_user_id, payload, command_id, ip_address, device_id`

// AppendAuditEvent inserts an audit row. Seq comes from the AUTOINCREMENT
// key so it never repeats, even after rollbacks.
func (t *tx) AppendAuditEvent(ctx context.Context, e *models.AuditEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	payload := string(e.Payload)
	if payload == "" {
		payload = "{}"
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO audit_events (id, ts, actor_user_id, actor_role, action_type, entity_type, entity_id,
			group_id, subject_user_id, payload, command_id, ip_address, device_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nanos(e.Timestamp), e.ActorUserID, string(e.ActorRole), string(e.ActionType),
		string(e.EntityType), e.EntityID, e.GroupID, e.SubjectUserID, payload,
		e.CommandID, e.IPAddress, e.DeviceID,
	)
	if err != nil {
		return insertErr(err, "audit event "+e.ID)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read audit seq: %w", err)
	}
	e.Seq = seq
	return nil
}

// ListAuditEvents returns matching events ordered by (ts, seq).
func (t *tx) ListAuditEvents(ctx context.Context, f models.AuditFilter) ([]*models.AuditEvent, error) {
	var where []string
	var args []any

	if f.GroupID != "" {
		where = append(where, "group_id = ?")
		args = append(args, f.GroupID)
	}
	if f.ActorUserID != "" {
		where = append(where, "actor_user_id = ?")
		args = append(args, f.ActorUserID)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.InvolvingUserID != "" {
		where = append(where, "(actor_user_id = ? OR subject_user_id = ?)")
		args = append(args, f.InvolvingUserID, f.InvolvingUserID)
	}
	if len(f.ActionTypes) > 0 {
		where = append(where, "action_type IN ("+placeholders(len(f.ActionTypes))+")")
		args = append(args, stringArgs(f.ActionTypes)...)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts ASC, seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		e := &models.AuditEvent{}
		var ts int64
		var payload string
		if err := rows.Scan(&e.Seq, &e.ID, &ts, &e.ActorUserID, &e.ActorRole, &e.ActionType,
			&e.EntityType, &e.EntityID, &e.GroupID, &e.SubjectUserID, &payload,
			&e.CommandID, &e.IPAddress, &e.DeviceID); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Timestamp = fromNanos(ts)
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, nil
}
