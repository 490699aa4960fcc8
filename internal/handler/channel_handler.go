package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/teamloop/teamloop/internal/authz"
	"github.com/teamloop/teamloop/internal/middleware"
	"github.com/teamloop/teamloop/internal/model"
	"github.com/teamloop/teamloop/internal/realtime"
	"github.com/teamloop/teamloop/pkg/apperr"
	"github.com/teamloop/teamloop/pkg/database"
	"github.com/teamloop/teamloop/pkg/logger"
	"github.com/teamloop/teamloop/pkg/response"
	"github.com/teamloop/teamloop/prometheus"
)

type channelResponse struct {
	model.Channel
	UnreadCount int64 `json:"unread_count"`
	IsMember    bool  `json:"is_member"`
}

// CreateChannel creates a PUBLIC or PRIVATE channel; the creator becomes its
// first member with the channel admin role. DIRECT channels go through
// the direct-messages endpoint instead.
func CreateChannel(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordChannelOperation("create")

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request")
	}
	if req.Name == "" {
		return apperr.Validation("invalid channel data", apperr.FieldError{
			Field: "name", Message: "name is required",
		})
	}
	if req.Type == "" {
		req.Type = model.ChannelTypePublic
	}
	if req.Type == model.ChannelTypeDirect || !model.ValidChannelType(req.Type) {
		return apperr.Validation("invalid channel data", apperr.FieldError{
			Field: "type", Message: "type must be PUBLIC or PRIVATE",
		})
	}

	caps := authz.CapabilitiesFor(cl.Role, tenantID, cl.TenantID, false)
	if !caps.CanWrite {
		return apperr.Forbidden("insufficient permissions to create channels")
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	channel := model.Channel{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		CreatedBy:   cl.UserID,
	}
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(&channel); result.Error != nil {
			return result.Error
		}
		member := model.ChannelMember{
			ChannelID:  channel.ID,
			UserID:     cl.UserID,
			Role:       model.ChannelRoleAdmin,
			LastReadAt: time.Now(),
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		log.Error("Failed to create channel", zap.Error(err))
		return apperr.Wrap(apperr.CodeInternal, "channel creation failed", err)
	}

	hub.JoinUser(cl.UserID, realtime.ChannelRoom(channel.ID))

	log.Info("Channel created",
		zap.Uint("channel_id", channel.ID),
		zap.String("type", channel.Type),
		zap.Uint("tenant_id", tenantID))
	return response.OK(c, http.StatusCreated, channel)
}

// ListChannels returns the channels visible to the caller: every PUBLIC
// channel of the tenant plus the PRIVATE channels the caller belongs to.
// DIRECT channels are listed by the direct-messages endpoint.
func ListChannels(c echo.Context) error {
	log := logger.FromContext(c)

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	defer prometheus.TrackDBOperation("query")(time.Now())

	var channels []model.Channel
	result := database.GetDB().
		Where("tenant_id = ? AND type <> ?", tenantID, model.ChannelTypeDirect).
		Where("type = ? OR id IN (?)", model.ChannelTypePublic,
			database.GetDB().Model(&model.ChannelMember{}).
				Select("channel_id").
				Where("user_id = ?", cl.UserID)).
		Order("created_at ASC").
		Find(&channels)
	if result.Error != nil {
		log.Error("Failed to list channels", zap.Error(result.Error))
		return apperr.Wrap(apperr.CodeInternal, "failed to list channels", result.Error)
	}

	out := make([]channelResponse, 0, len(channels))
	for _, ch := range channels {
		entry := channelResponse{Channel: ch}
		if member, ok := membershipOf(ch.ID, cl.UserID); ok {
			entry.IsMember = true
			database.GetDB().Model(&model.Message{}).
				Where("channel_id = ? AND created_at > ? AND user_id <> ?",
					ch.ID, member.LastReadAt, cl.UserID).
				Count(&entry.UnreadCount)
		}
		out = append(out, entry)
	}

	return response.OK(c, http.StatusOK, out)
}

// GetChannel returns one channel with its members. PRIVATE and DIRECT
// channels answer NotFound for non-members so their existence is not leaked.
func GetChannel(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	channel, err := loadChannel(tenantID, channelID)
	if err != nil {
		return err
	}

	if channel.Type != model.ChannelTypePublic && cl.Role != model.RoleSuperAdmin {
		if _, ok := membershipOf(channel.ID, cl.UserID); !ok {
			return apperr.NotFound("channel not found")
		}
	}

	var full model.Channel
	if result := database.GetDB().Preload("Members.User").First(&full, channel.ID); result.Error != nil {
		// The channel itself loaded fine, so answer with it rather than
		// failing the request over the member expansion.
		logger.FromContext(c).Warn("Failed to load channel members", zap.Error(result.Error))
		return response.OK(c, http.StatusOK, channel)
	}
	return response.OK(c, http.StatusOK, full)
}

// DeleteChannel removes a channel and cascades membership and message
// deletion. Only tenant admins, the creator or channel admins may delete.
func DeleteChannel(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordChannelOperation("delete")

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	channel, err := loadChannel(tenantID, channelID)
	if err != nil {
		return err
	}
	if !canManageChannel(cl, channel) {
		return apperr.Forbidden("insufficient permissions to delete this channel")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if result := tx.Where("channel_id = ?", channel.ID).Delete(&model.Message{}); result.Error != nil {
			return result.Error
		}
		if result := tx.Where("channel_id = ?", channel.ID).Delete(&model.ChannelMember{}); result.Error != nil {
			return result.Error
		}
		return tx.Delete(channel).Error
	})
	if err != nil {
		log.Error("Failed to delete channel", zap.Error(err))
		return apperr.Wrap(apperr.CodeInternal, "channel deletion failed", err)
	}

	hub.Broadcast(tenantID, realtime.ChannelRoom(channel.ID), realtime.Event{
		Event: realtime.EventChannelDeleted,
		Data:  echo.Map{"channel_id": channel.ID},
	})

	log.Info("Channel deleted",
		zap.Uint("channel_id", channel.ID),
		zap.Uint("tenant_id", tenantID))
	return response.Message(c, http.StatusOK, "channel deleted")
}

// JoinChannel lets a tenant member join a PUBLIC channel. Joining twice is
// a no-op: the unique membership constraint downgrades the race to success.
func JoinChannel(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordChannelOperation("join")

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	channel, err := loadChannel(tenantID, channelID)
	if err != nil {
		return err
	}
	if channel.Type != model.ChannelTypePublic {
		return apperr.Forbidden("only public channels can be joined directly")
	}

	member := model.ChannelMember{
		ChannelID:  channel.ID,
		UserID:     cl.UserID,
		Role:       model.ChannelRoleMember,
		LastReadAt: time.Now(),
	}
	if result := database.GetDB().Create(&member); result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			log.Error("Failed to join channel", zap.Error(result.Error))
			return apperr.Wrap(apperr.CodeInternal, "join failed", result.Error)
		}
		// Already a member
		return response.Message(c, http.StatusOK, "already a member")
	}

	hub.JoinUser(cl.UserID, realtime.ChannelRoom(channel.ID))

	database.GetDB().Preload("User").First(&member, member.ID)
	hub.Broadcast(tenantID, realtime.ChannelRoom(channel.ID), realtime.Event{
		Event: realtime.EventMemberAdded,
		Data:  echo.Map{"channel_id": channel.ID, "member": member},
	})

	return response.OK(c, http.StatusCreated, member)
}

// LeaveChannel removes the caller's own membership from a PUBLIC channel
func LeaveChannel(c echo.Context) error {
	prometheus.RecordChannelOperation("leave")

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	channel, err := loadChannel(tenantID, channelID)
	if err != nil {
		return err
	}
	if channel.Type != model.ChannelTypePublic {
		return apperr.Forbidden("only public channels can be left directly")
	}

	result := database.GetDB().
		Where("channel_id = ? AND user_id = ?", channel.ID, cl.UserID).
		Delete(&model.ChannelMember{})
	if result.Error != nil {
		return apperr.Wrap(apperr.CodeInternal, "leave failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("not a member of this channel")
	}

	hub.LeaveUser(cl.UserID, realtime.ChannelRoom(channel.ID))
	hub.Broadcast(tenantID, realtime.ChannelRoom(channel.ID), realtime.Event{
		Event: realtime.EventMemberRemoved,
		Data:  echo.Map{"channel_id": channel.ID, "user_id": cl.UserID},
	})

	return response.Message(c, http.StatusOK, "left channel")
}

// AddMembers bulk-adds tenant users to a channel. Only tenant admins, the
// creator or channel admins may add; duplicates are skipped.
func AddMembers(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordChannelOperation("add_member")

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	channel, err := loadChannel(tenantID, channelID)
	if err != nil {
		return err
	}
	if channel.Type == model.ChannelTypeDirect {
		return apperr.Validation("direct channels have a fixed pair of members")
	}
	if !canManageChannel(cl, channel) {
		return apperr.Forbidden("insufficient permissions to add members")
	}

	var req struct {
		UserIDs []uint `json:"user_ids"`
	}
	if err := c.Bind(&req); err != nil || len(req.UserIDs) == 0 {
		return apperr.Validation("user_ids is required")
	}

	// Targets must exist, be active and belong to the channel's tenant
	var users []model.User
	database.GetDB().
		Where("id IN ? AND tenant_id = ? AND is_active = ?", req.UserIDs, channel.TenantID, true).
		Find(&users)
	if len(users) != len(req.UserIDs) {
		return apperr.Validation("one or more users not found in this tenant")
	}

	added := make([]model.ChannelMember, 0, len(users))
	for _, u := range users {
		member := model.ChannelMember{
			ChannelID:  channel.ID,
			UserID:     u.ID,
			Role:       model.ChannelRoleMember,
			LastReadAt: time.Now(),
		}
		if result := database.GetDB().Create(&member); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				continue
			}
			log.Error("Failed to add member", zap.Uint("user_id", u.ID), zap.Error(result.Error))
			return apperr.Wrap(apperr.CodeInternal, "failed to add members", result.Error)
		}
		member.User = u
		added = append(added, member)

		hub.JoinUser(u.ID, realtime.ChannelRoom(channel.ID))
		hub.Broadcast(tenantID, realtime.ChannelRoom(channel.ID), realtime.Event{
			Event: realtime.EventMemberAdded,
			Data:  echo.Map{"channel_id": channel.ID, "member": member},
		})
	}

	log.Info("Members added",
		zap.Uint("channel_id", channel.ID),
		zap.Int("count", len(added)))
	return response.OK(c, http.StatusCreated, added)
}

// RemoveMember removes a member from a channel. The creator can never be
// removed.
func RemoveMember(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordChannelOperation("remove_member")

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	userID, err := parseIDParam(c, "userId")
	if err != nil {
		return err
	}

	channel, err := loadChannel(tenantID, channelID)
	if err != nil {
		return err
	}
	if !canManageChannel(cl, channel) {
		return apperr.Forbidden("insufficient permissions to remove members")
	}
	if userID == channel.CreatedBy {
		return apperr.Forbidden("the channel creator cannot be removed")
	}

	result := database.GetDB().
		Where("channel_id = ? AND user_id = ?", channel.ID, userID).
		Delete(&model.ChannelMember{})
	if result.Error != nil {
		log.Error("Failed to remove member", zap.Error(result.Error))
		return apperr.Wrap(apperr.CodeInternal, "failed to remove member", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("member not found")
	}

	hub.LeaveUser(userID, realtime.ChannelRoom(channel.ID))
	hub.Broadcast(tenantID, realtime.ChannelRoom(channel.ID), realtime.Event{
		Event: realtime.EventMemberRemoved,
		Data:  echo.Map{"channel_id": channel.ID, "user_id": userID},
	})
	// The removed user has already left the channel room, so their devices
	// are told on their user room instead.
	hub.Broadcast(tenantID, realtime.UserRoom(userID), realtime.Event{
		Event: realtime.EventMemberRemoved,
		Data:  echo.Map{"channel_id": channel.ID, "user_id": userID},
	})

	return response.Message(c, http.StatusOK, "member removed")
}

// MarkAsRead moves the caller's last-read marker for the channel to now
func MarkAsRead(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	channelID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}
	channel, err := loadChannel(tenantID, channelID)
	if err != nil {
		return err
	}

	member, ok := membershipOf(channel.ID, cl.UserID)
	if !ok {
		return apperr.Forbidden("not a member of this channel")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(member).Update("last_read_at", time.Now()); result.Error != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to update read marker", result.Error)
	}

	return response.Message(c, http.StatusOK, "marked as read")
}
