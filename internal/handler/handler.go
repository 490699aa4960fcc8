// Package handler contains the HTTP and websocket handlers. Handlers talk
// to the database directly and return typed errors that the central error
// handler maps onto the response envelope.
package handler

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/teamloop/teamloop/internal/authz"
	"github.com/teamloop/teamloop/internal/middleware"
	"github.com/teamloop/teamloop/internal/model"
	"github.com/teamloop/teamloop/internal/realtime"
	"github.com/teamloop/teamloop/pkg/apperr"
	"github.com/teamloop/teamloop/pkg/config"
	"github.com/teamloop/teamloop/pkg/database"
	"github.com/teamloop/teamloop/pkg/jwtutil"
)

var (
	hub *realtime.Hub
	cfg *config.Config
)

// Init wires the shared collaborators into the handler package
func Init(h *realtime.Hub, c *config.Config) {
	hub = h
	cfg = c
}

// parseIDParam parses a numeric path parameter
func parseIDParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, apperr.Validation("invalid " + name + " parameter")
	}
	return uint(id), nil
}

// claims returns the authenticated caller or an Unauthorized error
func claims(c echo.Context) (*jwtutil.UserClaims, error) {
	cl, ok := middleware.ClaimsFrom(c)
	if !ok {
		return nil, apperr.Unauthorized("authentication required")
	}
	return cl, nil
}

// loadChannel fetches a channel scoped to the tenant. Channels outside the
// tenant answer NotFound so nothing leaks across the boundary.
func loadChannel(tenantID, channelID uint) (*model.Channel, error) {
	var channel model.Channel
	result := database.GetDB().Where("tenant_id = ?", tenantID).First(&channel, channelID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("channel not found")
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to load channel", result.Error)
	}
	return &channel, nil
}

// membershipOf returns the caller's membership row for a channel, if any
func membershipOf(channelID, userID uint) (*model.ChannelMember, bool) {
	var member model.ChannelMember
	result := database.GetDB().
		Where("channel_id = ? AND user_id = ?", channelID, userID).
		First(&member)
	if result.Error != nil {
		return nil, false
	}
	return &member, true
}

// channelCaps resolves the caller's capabilities for a channel
func channelCaps(cl *jwtutil.UserClaims, channel *model.Channel) authz.Capabilities {
	return authz.CapabilitiesFor(cl.Role, channel.TenantID, cl.TenantID, channel.CreatedBy == cl.UserID)
}

// canManageChannel reports whether the caller may administer the channel:
// tenant admins, the channel creator, and channel-level admins.
func canManageChannel(cl *jwtutil.UserClaims, channel *model.Channel) bool {
	if channelCaps(cl, channel).CanManage {
		return true
	}
	if member, ok := membershipOf(channel.ID, cl.UserID); ok {
		return member.Role == model.ChannelRoleAdmin
	}
	return false
}
