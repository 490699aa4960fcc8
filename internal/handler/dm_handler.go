package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/teamloop/teamloop/internal/middleware"
	"github.com/teamloop/teamloop/internal/model"
	"github.com/teamloop/teamloop/internal/realtime"
	"github.com/teamloop/teamloop/pkg/apperr"
	"github.com/teamloop/teamloop/pkg/database"
	"github.com/teamloop/teamloop/pkg/logger"
	"github.com/teamloop/teamloop/pkg/response"
	"github.com/teamloop/teamloop/prometheus"
)

// ListDirectMessages returns the caller's DIRECT channels with both
// participants embedded, so the client can derive the display name from the
// other one.
func ListDirectMessages(c echo.Context) error {
	log := logger.FromContext(c)

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	defer prometheus.TrackDBOperation("query")(time.Now())
	var channels []model.Channel
	result := database.GetDB().
		Preload("Members.User").
		Where("tenant_id = ? AND type = ?", tenantID, model.ChannelTypeDirect).
		Where("id IN (?)", database.GetDB().Model(&model.ChannelMember{}).
			Select("channel_id").
			Where("user_id = ?", cl.UserID)).
		Order("updated_at DESC").
		Find(&channels)
	if result.Error != nil {
		log.Error("Failed to list direct messages", zap.Error(result.Error))
		return apperr.Wrap(apperr.CodeInternal, "failed to list direct messages", result.Error)
	}

	return response.OK(c, http.StatusOK, channels)
}

// CreateDirectMessage creates the DIRECT channel between the caller and the
// recipient, or returns the existing one. Idempotent in either direction of
// the pair: the unique dm_key downgrades a concurrent duplicate create to a
// lookup of the winner's row.
func CreateDirectMessage(c echo.Context) error {
	log := logger.FromContext(c)

	cl, err := claims(c)
	if err != nil {
		return err
	}
	tenantID := middleware.PathTenantID(c)

	var req struct {
		RecipientID uint `json:"recipient_id"`
	}
	if err := c.Bind(&req); err != nil || req.RecipientID == 0 {
		return apperr.Validation("recipient_id is required")
	}
	if req.RecipientID == cl.UserID {
		return apperr.Validation("cannot start a direct message with yourself")
	}

	var recipient model.User
	result := database.GetDB().
		Where("id = ? AND tenant_id = ? AND is_active = ?", req.RecipientID, tenantID, true).
		First(&recipient)
	if result.Error != nil {
		return apperr.NotFound("recipient not found")
	}

	dmKey := model.DMKeyFor(cl.UserID, req.RecipientID)

	var existing model.Channel
	if result := database.GetDB().Preload("Members.User").
		Where("dm_key = ?", dmKey).First(&existing); result.Error == nil {
		return response.OK(c, http.StatusOK, existing)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	channel := model.Channel{
		TenantID:  tenantID,
		Type:      model.ChannelTypeDirect,
		CreatedBy: cl.UserID,
		DMKey:     dmKey,
	}
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(&channel); result.Error != nil {
			return result.Error
		}
		members := []model.ChannelMember{
			{ChannelID: channel.ID, UserID: cl.UserID, Role: model.ChannelRoleMember, LastReadAt: time.Now()},
			{ChannelID: channel.ID, UserID: recipient.ID, Role: model.ChannelRoleMember, LastReadAt: time.Now()},
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the race: another request created the pair first
			if result := database.GetDB().Preload("Members.User").
				Where("dm_key = ?", dmKey).First(&existing); result.Error == nil {
				return response.OK(c, http.StatusOK, existing)
			}
		}
		log.Error("Failed to create direct message channel", zap.Error(err))
		return apperr.Wrap(apperr.CodeInternal, "direct message creation failed", err)
	}

	hub.JoinUser(cl.UserID, realtime.ChannelRoom(channel.ID))
	hub.JoinUser(recipient.ID, realtime.ChannelRoom(channel.ID))

	database.GetDB().Preload("Members.User").First(&channel, channel.ID)

	log.Info("Direct message channel created",
		zap.Uint("channel_id", channel.ID),
		zap.Uint("tenant_id", tenantID))
	return response.OK(c, http.StatusCreated, channel)
}
