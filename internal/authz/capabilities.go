// Package authz centralizes role-based access decisions. Every handler
// resolves a Capabilities value through CapabilitiesFor instead of branching
// on roles inline.
package authz

import "github.com/teamloop/teamloop/internal/model"

// Capabilities describes what a caller may do with a resource
type Capabilities struct {
	CanRead   bool
	CanWrite  bool
	CanManage bool
}

// CapabilitiesFor resolves the caller's capabilities for a resource owned by
// resourceTenantID. SUPER_ADMIN is unrestricted across tenants; everyone
// else is confined to their own tenant. isCreator grants manage rights on
// the specific resource (channel creators manage their channels).
func CapabilitiesFor(role string, resourceTenantID, callerTenantID uint, isCreator bool) Capabilities {
	if role == model.RoleSuperAdmin {
		return Capabilities{CanRead: true, CanWrite: true, CanManage: true}
	}

	if resourceTenantID != callerTenantID {
		return Capabilities{}
	}

	switch role {
	case model.RoleAdmin:
		return Capabilities{CanRead: true, CanWrite: true, CanManage: true}
	case model.RoleMember:
		return Capabilities{CanRead: true, CanWrite: true, CanManage: isCreator}
	case model.RoleViewer:
		return Capabilities{CanRead: true, CanManage: isCreator}
	default:
		return Capabilities{}
	}
}
