package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Channel types
const (
	ChannelTypePublic  = "PUBLIC"
	ChannelTypePrivate = "PRIVATE"
	ChannelTypeDirect  = "DIRECT"
)

// Channel is a conversation container with membership. DIRECT channels have
// exactly two members, no meaningful name, and a DMKey identifying the
// unordered participant pair so create-or-fetch is idempotent under races.
type Channel struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    uint           `json:"tenant_id" gorm:"index;not null"`
	Name        string         `json:"name" gorm:"type:varchar(100)"`
	Description string         `json:"description,omitempty" gorm:"type:text"`
	Type        string         `json:"type" gorm:"type:varchar(20);not null;default:'PUBLIC'"`
	CreatedBy   uint           `json:"created_by" gorm:"index;not null"`
	DMKey       string         `json:"-" gorm:"type:varchar(50);uniqueIndex:idx_channels_dm_key,where:dm_key <> ''"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	Members []ChannelMember `json:"members,omitempty" gorm:"foreignKey:ChannelID"`
}

// DMKeyFor builds the canonical key for the unordered pair of direct-message
// participants. Both argument orders produce the same key.
func DMKeyFor(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ValidChannelType reports whether t is one of the known channel types
func ValidChannelType(t string) bool {
	switch t {
	case ChannelTypePublic, ChannelTypePrivate, ChannelTypeDirect:
		return true
	}
	return false
}
