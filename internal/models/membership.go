package models

import "time"

// MembershipStatus is the standing of a member within a group.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "ACTIVE"
	MembershipSuspended MembershipStatus = "SUSPENDED"
)

// Membership links a user to a group. (GroupID, UserID) is unique.
// Memberships are suspended rather than deleted once the group leaves DRAFT
// so that round history keeps pointing at a real row.
type Membership struct {
	ID       string
	GroupID  string
	UserID   string
	Role     Role
	Status   MembershipStatus
	JoinedAt time.Time
}

// ActiveMember reports whether the membership takes part in rounds.
func (m *Membership) ActiveMember() bool {
	return m.Status == MembershipActive && m.Role == RoleMember
}

// ActiveMembers filters memberships down to ACTIVE rows with role MEMBER,
// preserving order.
func ActiveMembers(ms []*Membership) []*Membership {
	var out []*Membership
	for _, m := range ms {
		if m.ActiveMember() {
			out = append(out, m)
		}
	}
	return out
}
