package models

// Capabilities is the explicit badge-permission set derived from the gateway
// role headers. Handlers pass it into the services; nothing reads roles from
// ambient state.
type Capabilities struct {
	CanView    bool `json:"can_view"`
	CanApprove bool `json:"can_approve"`
	CanManage  bool `json:"can_manage"`
}

// Roles forwarded by the gateway (X-User-Roles).
const (
	RoleAdmin     = "admin"
	RoleChef      = "chef"      // troop leader: full badge management
	RoleAnimateur = "animateur" // unit leader: approves and delivers stars
	RoleParent    = "parent"
	RoleMember    = "member"
)

// CapabilitiesFromRoles maps gateway roles to badge capabilities. Higher
// roles imply the lower ones.
func CapabilitiesFromRoles(roles []string) Capabilities {
	var caps Capabilities
	for _, role := range roles {
		switch role {
		case RoleAdmin, RoleChef:
			caps.CanManage = true
			caps.CanApprove = true
			caps.CanView = true
		case RoleAnimateur:
			caps.CanApprove = true
			caps.CanView = true
		case RoleParent, RoleMember:
			caps.CanView = true
		}
	}
	return caps
}
