package models

import (
	"encoding/json"
	"time"
)

// ActionType is the closed set of facts the audit log can record.
type ActionType string

const (
	ActionGroupCreated          ActionType = "GROUP_CREATED"
	ActionMemberAdded           ActionType = "MEMBER_ADDED"
	ActionMemberRoleChanged     ActionType = "MEMBER_ROLE_CHANGED"
	ActionMemberSuspended       ActionType = "MEMBER_SUSPENDED"
	ActionMemberReinstated      ActionType = "MEMBER_REINSTATED"
	ActionGroupActivated        ActionType = "GROUP_ACTIVATED"
	ActionRoundInitialized      ActionType = "ROUND_INITIALIZED"
	ActionRoundProgressed       ActionType = "ROUND_PROGRESSED"
	ActionRoundClosed           ActionType = "ROUND_CLOSED"
	ActionGroupOnHold           ActionType = "GROUP_ON_HOLD"
	ActionGroupResumed          ActionType = "GROUP_RESUMED"
	ActionGroupTerminated       ActionType = "GROUP_TERMINATED"
	ActionGroupCompleted        ActionType = "GROUP_COMPLETED"
	ActionContributionCreated   ActionType = "CONTRIBUTION_CREATED"
	ActionContributionConfirmed ActionType = "CONTRIBUTION_CONFIRMED"
	ActionContributionRejected  ActionType = "CONTRIBUTION_REJECTED"
	ActionPayoutCompleted       ActionType = "PAYOUT_COMPLETED"
	ActionPayoutRejected        ActionType = "PAYOUT_REJECTED"
)

// AllActionTypes lists every ActionType in declaration order.
var AllActionTypes = []ActionType{
	ActionGroupCreated,
	ActionMemberAdded,
	ActionMemberRoleChanged,
	ActionMemberSuspended,
	ActionMemberReinstated,
	ActionGroupActivated,
	ActionRoundInitialized,
	ActionRoundProgressed,
	ActionRoundClosed,
	ActionGroupOnHold,
	ActionGroupResumed,
	ActionGroupTerminated,
	ActionGroupCompleted,
	ActionContributionCreated,
	ActionContributionConfirmed,
	ActionContributionRejected,
	ActionPayoutCompleted,
	ActionPayoutRejected,
}

// EntityType names the projection table an audit event refers to.
type EntityType string

const (
	EntityGroup        EntityType = "GROUP"
	EntityMembership   EntityType = "MEMBERSHIP"
	EntityContribution EntityType = "CONTRIBUTION"
	EntityPayout       EntityType = "PAYOUT"
)

// AuditEvent is one immutable fact in the audit log.
// Events are totally ordered by (Timestamp, Seq).
type AuditEvent struct {
	ID string

	// Seq is assigned by the store on append and is strictly increasing.
	Seq int64

	Timestamp   time.Time
	ActorUserID string
	ActorRole   Role
	ActionType  ActionType
	EntityType  EntityType
	EntityID    string

	// GroupID is denormalized from the payload at write time so that
	// per-group scans never have to look inside Payload.
	GroupID string

	// SubjectUserID is the member the event is about (invited member,
	// contribution owner, payout recipient), denormalized like GroupID.
	SubjectUserID string

	// Payload is opaque structured data (JSON).
	Payload json.RawMessage

	CommandID string
	IPAddress string
	DeviceID  string
}

// AuditFilter narrows an audit log scan. Zero fields match everything.
type AuditFilter struct {
	GroupID     string
	ActorUserID string
	EntityID    string
	ActionTypes []ActionType

	// InvolvingUserID matches events whose actor or subject is the user.
	InvolvingUserID string

	Limit int
}
