package models

// Role is a capability held by an actor or a membership.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleCollector Role = "COLLECTOR"
	RoleMember    Role = "MEMBER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCollector, RoleMember:
		return true
	}
	return false
}

// Actor is the authenticated caller of a core operation.
// It is resolved outside the core; the core re-checks Role on every call.
type Actor struct {
	ID   string
	Role Role

	// IPAddress, DeviceID and CommandID are optional request metadata
	// copied into audit rows.
	IPAddress string
	DeviceID  string
	CommandID string
}

// Is reports whether the actor holds any of the given roles.
func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
