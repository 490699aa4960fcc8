package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/teamloop/teamloop/internal/model"
	"github.com/teamloop/teamloop/pkg/apperr"
	"github.com/teamloop/teamloop/pkg/database"
	"github.com/teamloop/teamloop/pkg/logger"
	"github.com/teamloop/teamloop/pkg/response"
	"github.com/teamloop/teamloop/prometheus"
)

// The admin surface is cross-tenant and guarded by RequireSuperAdmin.

// AdminListTenants returns all tenants
func AdminListTenants(c echo.Context) error {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var tenants []model.Tenant
	if result := database.GetDB().Order("id ASC").Find(&tenants); result.Error != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to list tenants", result.Error)
	}
	return response.OK(c, http.StatusOK, tenants)
}

// AdminUpdateTenant updates a tenant. Only the allow-listed fields are
// accepted; arbitrary settings merges are deliberately not supported.
func AdminUpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, tenantID); result.Error != nil {
		return apperr.NotFound("tenant not found")
	}

	var req struct {
		Name     *string `json:"name"`
		Plan     *string `json:"plan"`
		Status   *string `json:"status"`
		Settings *string `json:"settings"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		if *req.Name == "" {
			return apperr.Validation("invalid tenant data", apperr.FieldError{
				Field: "name", Message: "name cannot be empty",
			})
		}
		updates["name"] = *req.Name
	}
	if req.Plan != nil {
		if !model.ValidTenantPlan(*req.Plan) {
			return apperr.Validation("invalid tenant data", apperr.FieldError{
				Field: "plan", Message: "plan must be FREE, PRO or ENTERPRISE",
			})
		}
		updates["plan"] = *req.Plan
	}
	if req.Status != nil {
		if !model.ValidTenantStatus(*req.Status) {
			return apperr.Validation("invalid tenant data", apperr.FieldError{
				Field: "status", Message: "status must be ACTIVE, SUSPENDED or TRIAL",
			})
		}
		updates["status"] = *req.Status
	}
	if req.Settings != nil {
		updates["settings"] = *req.Settings
	}
	if len(updates) == 0 {
		return apperr.Validation("no updatable fields provided")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(&tenant).Updates(updates); result.Error != nil {
		log.Error("Failed to update tenant", zap.Error(result.Error))
		return apperr.Wrap(apperr.CodeInternal, "tenant update failed", result.Error)
	}

	database.GetDB().First(&tenant, tenantID)
	return response.OK(c, http.StatusOK, tenant)
}

// AdminDeleteTenant cascades the removal of a tenant: messages and channel
// memberships are hard-deleted, channels, users and the tenant itself are
// soft-deleted, which makes all of it unreachable through every
// tenant-scoped endpoint.
func AdminDeleteTenant(c echo.Context) error {
	log := logger.FromContext(c)

	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, tenantID); result.Error != nil {
		return apperr.NotFound("tenant not found")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		channelIDs := tx.Model(&model.Channel{}).
			Select("id").
			Where("tenant_id = ?", tenant.ID)

		if result := tx.Where("channel_id IN (?)", channelIDs).Delete(&model.Message{}); result.Error != nil {
			return result.Error
		}
		if result := tx.Where("channel_id IN (?)", channelIDs).Delete(&model.ChannelMember{}); result.Error != nil {
			return result.Error
		}
		if result := tx.Where("tenant_id = ?", tenant.ID).Delete(&model.Channel{}); result.Error != nil {
			return result.Error
		}
		if result := tx.Where("tenant_id = ?", tenant.ID).Delete(&model.User{}); result.Error != nil {
			return result.Error
		}
		return tx.Delete(&tenant).Error
	})
	if err != nil {
		log.Error("Failed to delete tenant", zap.Uint("tenant_id", tenant.ID), zap.Error(err))
		return apperr.Wrap(apperr.CodeInternal, "tenant deletion failed", err)
	}

	log.Info("Tenant deleted", zap.Uint("tenant_id", tenant.ID))
	return response.Message(c, http.StatusOK, "tenant deleted")
}

// AdminListUsers returns users across tenants, optionally filtered by
// ?tenant_id
func AdminListUsers(c echo.Context) error {
	defer prometheus.TrackDBOperation("query")(time.Now())

	query := database.GetDB().Order("id ASC")
	if tenantParam := c.QueryParam("tenant_id"); tenantParam != "" {
		query = query.Where("tenant_id = ?", tenantParam)
	}

	var users []model.User
	if result := query.Find(&users); result.Error != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to list users", result.Error)
	}
	return response.OK(c, http.StatusOK, users)
}

// AdminUpdateUser updates a user's role, activation flag and profile fields
func AdminUpdateUser(c echo.Context) error {
	log := logger.FromContext(c)

	userID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		return apperr.NotFound("user not found")
	}

	var req struct {
		Role      *string `json:"role"`
		IsActive  *bool   `json:"is_active"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Avatar    *string `json:"avatar"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request")
	}

	updates := map[string]interface{}{}
	if req.Role != nil {
		if !model.ValidRole(*req.Role) {
			return apperr.Validation("invalid user data", apperr.FieldError{
				Field: "role", Message: "unknown role",
			})
		}
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}
	if len(updates) == 0 {
		return apperr.Validation("no updatable fields provided")
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if result := database.GetDB().Model(&user).Updates(updates); result.Error != nil {
		log.Error("Failed to update user", zap.Error(result.Error))
		return apperr.Wrap(apperr.CodeInternal, "user update failed", result.Error)
	}

	database.GetDB().First(&user, userID)
	return response.OK(c, http.StatusOK, user)
}

// AdminDeleteUser soft-deletes a user and drops their channel memberships
func AdminDeleteUser(c echo.Context) error {
	log := logger.FromContext(c)

	userID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		return apperr.NotFound("user not found")
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if result := tx.Where("user_id = ?", user.ID).Delete(&model.ChannelMember{}); result.Error != nil {
			return result.Error
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		log.Error("Failed to delete user", zap.Error(err))
		return apperr.Wrap(apperr.CodeInternal, "user deletion failed", err)
	}

	log.Info("User deleted", zap.Uint("user_id", user.ID))
	return response.Message(c, http.StatusOK, "user deleted")
}

// AdminAnalytics returns cross-tenant usage counts
func AdminAnalytics(c echo.Context) error {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var tenantCount, userCount, channelCount, messageCount int64
	db := database.GetDB()
	db.Model(&model.Tenant{}).Count(&tenantCount)
	db.Model(&model.User{}).Count(&userCount)
	db.Model(&model.Channel{}).Count(&channelCount)
	db.Model(&model.Message{}).Count(&messageCount)

	tenantsByStatus := map[string]int64{}
	for _, status := range []string{model.TenantStatusActive, model.TenantStatusSuspended, model.TenantStatusTrial} {
		var n int64
		db.Model(&model.Tenant{}).Where("status = ?", status).Count(&n)
		tenantsByStatus[status] = n
	}

	return response.OK(c, http.StatusOK, echo.Map{
		"tenants":           tenantCount,
		"users":             userCount,
		"channels":          channelCount,
		"messages":          messageCount,
		"tenants_by_status": tenantsByStatus,
	})
}
