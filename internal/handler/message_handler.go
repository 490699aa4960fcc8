package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/teamloop/teamloop/internal/middleware"
	"github.com/teamloop/teamloop/internal/model"
	"github.com/teamloop/teamloop/internal/realtime"
	"github.com/teamloop/teamloop/pkg/apperr"
	"github.com/teamloop/teamloop/pkg/database"
	"github.com/teamloop/teamloop/pkg/jwtutil"
	"github.com/teamloop/teamloop/pkg/logger"
	"github.com/teamloop/teamloop/pkg/response"
	"github.com/teamloop/teamloop/prometheus"
)

// pagingParams resolves limit/before query parameters against the
// configured default and maximum page sizes.
func pagingParams(limitParam, beforeParam string, defaultSize, maxSize int) (int, uint, error) {
	limit := defaultSize
	if limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n <= 0 {
			return 0, 0, apperr.Validation("invalid limit parameter")
		}
		limit = n
	}
	if limit > maxSize {
		limit = maxSize
	}

	var before uint
	if beforeParam != "" {
		n, err := strconv.ParseUint(beforeParam, 10, 32)
		if err != nil {
			return 0, 0, apperr.Validation("invalid before parameter")
		}
		before = uint(n)
	}
	return limit, before, nil
}

// canReadChannel reports whether the caller may read a channel's messages:
// PUBLIC channels are readable by every tenant member, everything else by
// members only.
func canReadChannel(cl *jwtutil.UserClaims, channel *model.Channel) bool {
	if cl.Role == model.RoleSuperAdmin {
		return true
	}
	if channel.Type == model.ChannelTypePublic {
		return true
	}
	_, ok := membershipOf(channel.ID, cl.UserID)
	return ok
}

// ListMessages returns a reverse-chronological page of messages. The cursor
// is a message id: pass before=<oldest returned id> for the next page.
func ListMessages(c echo.Context) error {
	log := logger.FromContext(c)

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
	if !canReadChannel(cl, channel) {
		return apperr.NotFound("channel not found")
	}

	limit, before, err := pagingParams(
		c.QueryParam("limit"), c.QueryParam("before"),
		cfg.Chat.DefaultPageSize, cfg.Chat.MaxPageSize)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	query := database.GetDB().
		Preload("User").
		Where("channel_id = ?", channel.ID)
	if before > 0 {
		query = query.Where("id < ?", before)
	}

	var messages []model.Message
	if result := query.Order("id DESC").Limit(limit).Find(&messages); result.Error != nil {
		log.Error("Failed to list messages", zap.Error(result.Error))
		return apperr.Wrap(apperr.CodeInternal, "failed to list messages", result.Error)
	}

	return response.OK(c, http.StatusOK, messages)
}

// SendMessage persists a message and, only after the write succeeds, fans
// it out to the channel's room. The sender's other devices receive it too.
func SendMessage(c echo.Context) error {
	log := logger.FromContext(c)

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

	if _, ok := membershipOf(channel.ID, cl.UserID); !ok && cl.Role != model.RoleSuperAdmin {
		return apperr.Forbidden("not a member of this channel")
	}
	caps := channelCaps(cl, channel)
	if !caps.CanWrite {
		return apperr.Forbidden("insufficient permissions to send messages")
	}

	var req struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request")
	}
	if req.Content == "" {
		return apperr.Validation("invalid message", apperr.FieldError{
			Field: "content", Message: "content is required",
		})
	}
	if req.Type == "" {
		req.Type = model.MessageTypeText
	}
	if !model.ValidMessageType(req.Type) {
		return apperr.Validation("invalid message", apperr.FieldError{
			Field: "type", Message: "type must be TEXT or SYSTEM",
		})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	message := model.Message{
		ChannelID: channel.ID,
		UserID:    cl.UserID,
		Content:   req.Content,
		Type:      req.Type,
	}
	if result := database.GetDB().Create(&message); result.Error != nil {
		log.Error("Failed to persist message", zap.Error(result.Error))
		return apperr.Wrap(apperr.CodeInternal, "message send failed", result.Error)
	}
	prometheus.MessageSentCounter.Inc()

	// Embed the author profile before returning and broadcasting
	database.GetDB().Preload("User").First(&message, message.ID)

	hub.Broadcast(tenantID, realtime.ChannelRoom(channel.ID), realtime.Event{
		Event: realtime.EventMessageNew,
		Data:  message,
	})

	return response.OK(c, http.StatusCreated, message)
}

// DeleteMessage hard-deletes a message. Only the original author or someone
// who can manage the channel may delete.
func DeleteMessage(c echo.Context) error {
	log := logger.FromContext(c)

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	messageID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var message model.Message
	if result := database.GetDB().First(&message, messageID); result.Error != nil {
		return apperr.NotFound("message not found")
	}

	channel, err := loadChannel(tenantID, message.ChannelID)
	if err != nil {
		// Channel outside the caller's tenant scope
		return apperr.NotFound("message not found")
	}

	if message.UserID != cl.UserID && !canManageChannel(cl, channel) {
		return apperr.Forbidden("insufficient permissions to delete this message")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if result := database.GetDB().Delete(&message); result.Error != nil {
		log.Error("Failed to delete message", zap.Error(result.Error))
		return apperr.Wrap(apperr.CodeInternal, "message deletion failed", result.Error)
	}

	hub.Broadcast(tenantID, realtime.ChannelRoom(channel.ID), realtime.Event{
		Event: realtime.EventMessageDeleted,
		Data:  echo.Map{"channel_id": channel.ID, "message_id": message.ID},
	})

	return response.Message(c, http.StatusOK, "message deleted")
}
