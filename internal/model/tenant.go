package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant status values
const (
	TenantStatusActive    = "ACTIVE"
	TenantStatusSuspended = "SUSPENDED"
	TenantStatusTrial     = "TRIAL"
)

// Tenant plan values
const (
	TenantPlanFree       = "FREE"
	TenantPlanPro        = "PRO"
	TenantPlanEnterprise = "ENTERPRISE"
)

// Tenant represents an isolated customer organization. Every other entity
// is partitioned by TenantID.
type Tenant struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	Plan      string         `json:"plan" gorm:"type:varchar(20);not null;default:'FREE'"`
	Status    string         `json:"status" gorm:"type:varchar(20);not null;default:'TRIAL'"`
	Settings  string         `json:"settings" gorm:"type:jsonb;default:'{}'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// ValidTenantStatus reports whether s is one of the known status values
func ValidTenantStatus(s string) bool {
	switch s {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusTrial:
		return true
	}
	return false
}

// ValidTenantPlan reports whether p is one of the known plan values
func ValidTenantPlan(p string) bool {
	switch p {
	case TenantPlanFree, TenantPlanPro, TenantPlanEnterprise:
		return true
	}
	return false
}
