package model

import (
	"time"

	"gorm.io/gorm"
)

// User roles, from most to least privileged
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleMember     = "MEMBER"
	RoleViewer     = "VIEWER"
)

// User represents the user model stored in the database. A user belongs to
// exactly one tenant for its lifetime.
type User struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  uint           `json:"tenant_id" gorm:"index;not null"`
	Email     string         `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	Password  string         `json:"-" gorm:"type:varchar(255)"`
	Role      string         `json:"role" gorm:"type:varchar(20);not null;default:'MEMBER'"`
	FirstName string         `json:"first_name" gorm:"type:varchar(100)"`
	LastName  string         `json:"last_name" gorm:"type:varchar(100)"`
	Avatar    string         `json:"avatar,omitempty" gorm:"type:varchar(255)"`
	IsActive  bool           `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Tenant Tenant `json:"-" gorm:"foreignKey:TenantID"`
}

// ValidRole reports whether r is one of the known roles
func ValidRole(r string) bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}
