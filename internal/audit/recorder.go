// Package audit writes and projects the append-only audit log.
//
// Every domain mutation appends exactly one event through Recorder.Append,
// inside the same transaction as the mutation, so a rollback discards both.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// Entry describes one fact to append.
type Entry struct {
	Actor         models.Actor
	Action        models.ActionType
	EntityType    models.EntityType
	EntityID      string
	GroupID       string
	SubjectUserID string

	// CommandID defaults to Actor.CommandID.
	CommandID string

	// Payload is marshalled to JSON; use the typed payloads in this package.
	Payload any
}

// Recorder appends audit events.
type Recorder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder. A nil logger uses slog.Default().
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Append writes e through tx. A failure is logged as critical and returned:
// a mutation without its audit row must not commit.
func (r *Recorder) Append(ctx context.Context, tx storage.Tx, e Entry) (*models.AuditEvent, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		r.critical(e, err)
		return nil, fmt.Errorf("failed to encode audit payload: %w", err)
	}

	commandID := e.CommandID
	if commandID == "" {
		commandID = e.Actor.CommandID
	}

	event := &models.AuditEvent{
		Timestamp:     r.now(),
		ActorUserID:   e.Actor.ID,
		ActorRole:     e.Actor.Role,
		ActionType:    e.Action,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		GroupID:       e.GroupID,
		SubjectUserID: e.SubjectUserID,
		Payload:       payload,
		CommandID:     commandID,
		IPAddress:     e.Actor.IPAddress,
		DeviceID:      e.Actor.DeviceID,
	}
	if err := tx.AppendAuditEvent(ctx, event); err != nil {
		r.critical(e, err)
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}
	return event, nil
}

func (r *Recorder) critical(e Entry, err error) {
	r.logger.Error("Audit append failed",
		"critical", true,
		"action", e.Action,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"group_id", e.GroupID,
		"error", err,
	)
}
