package realtime

import "fmt"

// Event names emitted to clients. These are part of the client contract and
// must stay stable; see README for payload shapes.
const (
	EventMessageNew     = "message:new"
	EventMessageDeleted = "message:deleted"
	EventMemberAdded    = "member:added"
	EventMemberRemoved  = "member:removed"
	EventChannelDeleted = "channel:deleted"
	EventAuthError      = "auth:error"
)

// Event is a single frame pushed to connected sockets
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ChannelRoom returns the room name for a channel's subscribers
func ChannelRoom(channelID uint) string {
	return fmt.Sprintf("channel:%d", channelID)
}

// UserRoom returns the per-user room, used to reach all of a user's devices
func UserRoom(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}
