package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// View is an audit event as shown to one viewer.
type View struct {
	Seq           int64             `json:"seq"`
	Timestamp     time.Time         `json:"timestamp"`
	Action        models.ActionType `json:"action"`
	Label         string            `json:"label"`
	Severity      Severity          `json:"severity"`
	ActorUserID   string            `json:"actorUserId"`
	ActorRole     models.Role       `json:"actorRole"`
	EntityType    models.EntityType `json:"entityType"`
	EntityID      string            `json:"entityId"`
	GroupID       string            `json:"groupId,omitempty"`
	SubjectUserID string            `json:"subjectUserId,omitempty"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	CommandID     string            `json:"commandId,omitempty"`
	IPAddress     string            `json:"ipAddress,omitempty"`
	DeviceID      string            `json:"deviceId,omitempty"`
}

// Feed serves read-only, role-filtered projections of the audit log.
type Feed struct {
	store  storage.Store
	logger *slog.Logger
}

// NewFeed creates a Feed over store.
func NewFeed(store storage.Store, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{store: store, logger: logger}
}

// AdminLog returns the unredacted log. Only ADMIN actors may read it.
func (f *Feed) AdminLog(ctx context.Context, actor models.Actor, filter models.AuditFilter) ([]View, error) {
	if actor.Role != models.RoleAdmin {
		return nil, models.ErrForbidden("admin log requires ADMIN")
	}

	var events []*models.AuditEvent
	err := f.store.View(ctx, func(r storage.Reader) error {
		var err error
		events, err = r.ListAuditEvents(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f.project(events, actor), nil
}

// PersonalActivity returns the events the actor performed or is the subject of.
func (f *Feed) PersonalActivity(ctx context.Context, actor models.Actor, limit int) ([]View, error) {
	var events []*models.AuditEvent
	err := f.store.View(ctx, func(r storage.Reader) error {
		var err error
		events, err = r.ListAuditEvents(ctx, models.AuditFilter{InvolvingUserID: actor.ID, Limit: limit})
		return err
	})
	if err != nil {
		return nil, err
	}
	return f.project(events, actor), nil
}

// GroupTimeline returns a group's events visible to the actor. Non-admin
// viewers must hold a membership (of any status) in the group.
func (f *Feed) GroupTimeline(ctx context.Context, actor models.Actor, groupID string) ([]View, error) {
	var events []*models.AuditEvent
	err := f.store.View(ctx, func(r storage.Reader) error {
		if _, err := r.GetGroup(ctx, groupID); err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin {
			if _, err := r.GetMembership(ctx, groupID, actor.ID); err != nil {
				return models.ErrForbidden("not a member of group %s", groupID)
			}
		}
		var err error
		events, err = r.ListAuditEvents(ctx, models.AuditFilter{GroupID: groupID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return f.project(events, actor), nil
}

// project filters and redacts events for the viewer, preserving order.
func (f *Feed) project(events []*models.AuditEvent, viewer models.Actor) []View {
	views := make([]View, 0, len(events))
	for _, e := range events {
		p, ok := Describe(e.ActionType)
		if !ok {
			// Unknown rows come from a newer writer; surface rather than hide.
			f.logger.Warn("Audit event without projection", "action", e.ActionType, "seq", e.Seq)
			p = Projection{Label: string(e.ActionType), Severity: SeverityWarning, Visibility: VisibilityAdmin}
		}
		subject := e.SubjectUserID != "" && e.SubjectUserID == viewer.ID
		self := e.ActorUserID == viewer.ID
		if !p.Visible(viewer.Role, subject || self) {
			continue
		}

		v := View{
			Seq:           e.Seq,
			Timestamp:     e.Timestamp,
			Action:        e.ActionType,
			Label:         p.Label,
			Severity:      p.Severity,
			ActorUserID:   e.ActorUserID,
			ActorRole:     e.ActorRole,
			EntityType:    e.EntityType,
			EntityID:      e.EntityID,
			GroupID:       e.GroupID,
			SubjectUserID: e.SubjectUserID,
			Payload:       e.Payload,
			CommandID:     e.CommandID,
			IPAddress:     e.IPAddress,
			DeviceID:      e.DeviceID,
		}
		if viewer.Role != models.RoleAdmin {
			redact(&v, viewer, subject || self)
		}
		views = append(views, v)
	}
	return views
}

// redact strips request metadata, and hides other members' contribution
// details from plain members.
func redact(v *View, viewer models.Actor, involved bool) {
	v.IPAddress = ""
	v.DeviceID = ""
	v.CommandID = ""
	if viewer.Role == models.RoleMember && !involved && strings.HasPrefix(string(v.Action), "CONTRIBUTION_") {
		v.Payload = nil
	}
}
