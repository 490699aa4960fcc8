package model

import "time"

// Message types
const (
	MessageTypeText   = "TEXT"
	MessageTypeSystem = "SYSTEM"
)

// Message is immutable once created; the only mutation is hard delete.
// There is deliberately no gorm.DeletedAt here.
type Message struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ChannelID uint      `json:"channel_id" gorm:"index;not null"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Type      string    `json:"type" gorm:"type:varchar(20);not null;default:'TEXT'"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// ValidMessageType reports whether t is one of the known message types
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeSystem:
		return true
	}
	return false
}
