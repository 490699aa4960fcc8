package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teamloop/teamloop/internal/model"
)

func TestCapabilitiesFor(t *testing.T) {
	tests := []struct {
		name             string
		role             string
		resourceTenantID uint
		callerTenantID   uint
		isCreator        bool
		want             Capabilities
	}{
		{
			name: "super admin crosses tenants",
			role: model.RoleSuperAdmin, resourceTenantID: 1, callerTenantID: 2,
			want: Capabilities{CanRead: true, CanWrite: true, CanManage: true},
		},
		{
			name: "admin in own tenant",
			role: model.RoleAdmin, resourceTenantID: 1, callerTenantID: 1,
			want: Capabilities{CanRead: true, CanWrite: true, CanManage: true},
		},
		{
			name: "admin outside own tenant gets nothing",
			role: model.RoleAdmin, resourceTenantID: 1, callerTenantID: 2,
			want: Capabilities{},
		},
		{
			name: "member reads and writes, no manage",
			role: model.RoleMember, resourceTenantID: 1, callerTenantID: 1,
			want: Capabilities{CanRead: true, CanWrite: true},
		},
		{
			name: "member manages resources it created",
			role: model.RoleMember, resourceTenantID: 1, callerTenantID: 1, isCreator: true,
			want: Capabilities{CanRead: true, CanWrite: true, CanManage: true},
		},
		{
			name: "viewer is read-only",
			role: model.RoleViewer, resourceTenantID: 1, callerTenantID: 1,
			want: Capabilities{CanRead: true},
		},
		{
			name: "viewer outside tenant gets nothing",
			role: model.RoleViewer, resourceTenantID: 3, callerTenantID: 1,
			want: Capabilities{},
		},
		{
			name: "unknown role gets nothing",
			role: "INTERN", resourceTenantID: 1, callerTenantID: 1,
			want: Capabilities{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CapabilitiesFor(tt.role, tt.resourceTenantID, tt.callerTenantID, tt.isCreator)
			assert.Equal(t, tt.want, got)
		})
	}
}
