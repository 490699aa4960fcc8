package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDMKeyForIsOrderIndependent(t *testing.T) {
	assert.Equal(t, DMKeyFor(3, 9), DMKeyFor(9, 3))
	assert.Equal(t, "3:9", DMKeyFor(9, 3))
}

func TestDMKeyForDistinctPairs(t *testing.T) {
	// "1:23" and "12:3" must not collide
	assert.NotEqual(t, DMKeyFor(1, 23), DMKeyFor(12, 3))
}

func TestValidators(t *testing.T) {
	assert.True(t, ValidRole(RoleSuperAdmin))
	assert.True(t, ValidRole(RoleViewer))
	assert.False(t, ValidRole("OWNER"))

	assert.True(t, ValidChannelType(ChannelTypeDirect))
	assert.False(t, ValidChannelType("GROUP"))

	assert.True(t, ValidTenantStatus(TenantStatusTrial))
	assert.False(t, ValidTenantStatus("DELETED"))

	assert.True(t, ValidTenantPlan(TenantPlanPro))
	assert.False(t, ValidTenantPlan("GOLD"))

	assert.True(t, ValidMessageType(MessageTypeSystem))
	assert.False(t, ValidMessageType("IMAGE"))
}
