package model

import "time"

// Channel membership roles
const (
	ChannelRoleAdmin  = "admin"
	ChannelRoleMember = "member"
)

// ChannelMember joins users to channels. The unique index on
// (channel_id, user_id) is what makes concurrent double-join requests safe:
// the second insert surfaces a conflict the handlers downgrade to a no-op.
type ChannelMember struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ChannelID  uint      `json:"channel_id" gorm:"uniqueIndex:idx_channel_members_pair;not null"`
	UserID     uint      `json:"user_id" gorm:"uniqueIndex:idx_channel_members_pair;not null"`
	Role       string    `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	JoinedAt   time.Time `json:"joined_at" gorm:"autoCreateTime"`
	LastReadAt time.Time `json:"last_read_at"`

	User    User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Channel Channel `json:"-" gorm:"foreignKey:ChannelID"`
}
