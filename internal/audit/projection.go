package audit

import "github.com/mmynk/equb/internal/models"

// Severity ranks how much attention an event deserves in operator views.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityNotice   Severity = "NOTICE"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Visibility decides which viewers may see an event.
type Visibility string

const (
	// VisibilityGroup events are shown to every member of the group.
	VisibilityGroup Visibility = "GROUP"
	// VisibilityStaff events are shown to admins, collectors, and the subject.
	VisibilityStaff Visibility = "STAFF"
	// VisibilityAdmin events are shown to admins only.
	VisibilityAdmin Visibility = "ADMIN"
)

// Projection is the display metadata of one action type.
type Projection struct {
	Label      string
	Severity   Severity
	Visibility Visibility
}

// Describe returns the projection of action. ok is false only for values
// outside models.AllActionTypes.
func Describe(action models.ActionType) (p Projection, ok bool) {
	switch action {
	case models.ActionGroupCreated:
		return Projection{"Group created", SeverityInfo, VisibilityGroup}, true
	case models.ActionMemberAdded:
		return Projection{"Member added", SeverityInfo, VisibilityGroup}, true
	case models.ActionMemberRoleChanged:
		return Projection{"Member role changed", SeverityNotice, VisibilityGroup}, true
	case models.ActionMemberSuspended:
		return Projection{"Member suspended", SeverityWarning, VisibilityStaff}, true
	case models.ActionMemberReinstated:
		return Projection{"Member reinstated", SeverityNotice, VisibilityStaff}, true
	case models.ActionGroupActivated:
		return Projection{"Group activated", SeverityInfo, VisibilityGroup}, true
	case models.ActionRoundInitialized:
		return Projection{"Round opened", SeverityInfo, VisibilityGroup}, true
	case models.ActionRoundProgressed:
		return Projection{"Round advanced", SeverityInfo, VisibilityGroup}, true
	case models.ActionRoundClosed:
		return Projection{"Round closed", SeverityInfo, VisibilityGroup}, true
	case models.ActionGroupOnHold:
		return Projection{"Group put on hold", SeverityWarning, VisibilityGroup}, true
	case models.ActionGroupResumed:
		return Projection{"Group resumed", SeverityNotice, VisibilityGroup}, true
	case models.ActionGroupTerminated:
		return Projection{"Group terminated", SeverityCritical, VisibilityGroup}, true
	case models.ActionGroupCompleted:
		return Projection{"Cycle completed", SeverityInfo, VisibilityGroup}, true
	case models.ActionContributionCreated:
		return Projection{"Contribution submitted", SeverityInfo, VisibilityGroup}, true
	case models.ActionContributionConfirmed:
		return Projection{"Contribution confirmed", SeverityInfo, VisibilityGroup}, true
	case models.ActionContributionRejected:
		return Projection{"Contribution rejected", SeverityWarning, VisibilityStaff}, true
	case models.ActionPayoutCompleted:
		return Projection{"Payout completed", SeverityInfo, VisibilityGroup}, true
	case models.ActionPayoutRejected:
		return Projection{"Payout rejected by reconciliation", SeverityCritical, VisibilityAdmin}, true
	}
	return Projection{}, false
}

// Visible reports whether a viewer with role may see an event with this
// projection. subject is true when the viewer is the event's subject.
func (p Projection) Visible(role models.Role, subject bool) bool {
	switch p.Visibility {
	case VisibilityGroup:
		return true
	case VisibilityStaff:
		return role == models.RoleAdmin || role == models.RoleCollector || subject
	case VisibilityAdmin:
		return role == models.RoleAdmin
	}
	return false
}
