package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/teamloop/teamloop/internal/model"
	"github.com/teamloop/teamloop/pkg/apperr"
	"github.com/teamloop/teamloop/pkg/database"
	"github.com/teamloop/teamloop/pkg/jwtutil"
	"github.com/teamloop/teamloop/pkg/logger"
	"github.com/teamloop/teamloop/pkg/response"
	"github.com/teamloop/teamloop/prometheus"
)

type sessionResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         *model.User `json:"user"`
}

func newSession(user *model.User) (*sessionResponse, error) {
	access, err := jwtutil.GenerateAccessToken(user.ID, user.Email, user.TenantID, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := jwtutil.GenerateRefreshToken(user.ID, user.Email, user.TenantID, user.Role)
	if err != nil {
		return nil, err
	}
	return &sessionResponse{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// Register creates a new tenant in TRIAL status together with its founding
// ADMIN user, atomically.
func Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		FirstName  string `json:"first_name"`
		LastName   string `json:"last_name"`
		TenantName string `json:"tenant_name"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return apperr.Validation("invalid request")
	}

	var fields []apperr.FieldError
	if req.Email == "" {
		fields = append(fields, apperr.FieldError{Field: "email", Message: "email is required"})
	}
	if len(req.Password) < 8 {
		fields = append(fields, apperr.FieldError{Field: "password", Message: "password must be at least 8 characters"})
	}
	if req.TenantName == "" {
		fields = append(fields, apperr.FieldError{Field: "tenant_name", Message: "tenant name is required"})
	}
	if len(fields) > 0 {
		prometheus.RecordAuthError("incomplete_registration")
		return apperr.Validation("invalid registration data", fields...)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return apperr.Internal("registration failed")
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	var user model.User
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		tenant := model.Tenant{
			Name:   req.TenantName,
			Plan:   model.TenantPlanFree,
			Status: model.TenantStatusTrial,
		}
		if result := tx.Create(&tenant); result.Error != nil {
			return result.Error
		}

		user = model.User{
			TenantID:  tenant.ID,
			Email:     req.Email,
			Password:  string(hashedPassword),
			Role:      model.RoleAdmin,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			IsActive:  true,
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Warn("Registration with existing email", zap.String("email", req.Email))
			prometheus.RecordAuthError("email_already_exists")
			return apperr.Conflict("email already registered")
		}
		log.Error("Failed to create tenant and user", zap.Error(err))
		prometheus.RecordAuthError("registration_failed")
		return apperr.Wrap(apperr.CodeInternal, "registration failed", err)
	}

	session, err := newSession(&user)
	if err != nil {
		log.Error("Failed to generate tokens", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return apperr.Internal("registration failed")
	}

	log.Info("Tenant registered",
		zap.String("email", user.Email),
		zap.Uint("tenant_id", user.TenantID))
	return response.OK(c, http.StatusCreated, session)
}

// Login authenticates a user by email and password
func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return apperr.Validation("invalid request")
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := database.GetDB().Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		log.Warn("Login for unknown user", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return apperr.Unauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return apperr.Unauthorized("invalid credentials")
	}

	if !user.IsActive {
		log.Warn("Login for inactive account", zap.String("email", req.Email))
		prometheus.RecordAuthError("inactive_account")
		return apperr.Unauthorized("account is inactive")
	}

	session, err := newSession(&user)
	if err != nil {
		log.Error("Failed to generate tokens", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return apperr.Internal("token error")
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.Uint("tenant_id", user.TenantID),
		zap.String("role", user.Role))
	return response.OK(c, http.StatusOK, session)
}

// Refresh exchanges a valid refresh token for a fresh token pair
func Refresh(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return apperr.Validation("refresh_token is required")
	}

	cl, err := jwtutil.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		log.Warn("Invalid refresh token", zap.Error(err))
		prometheus.RecordAuthError("invalid_refresh_token")
		return apperr.Unauthorized("invalid or expired refresh token")
	}

	var user model.User
	if result := database.GetDB().First(&user, cl.UserID); result.Error != nil || !user.IsActive {
		prometheus.RecordAuthError("refresh_user_unavailable")
		return apperr.Unauthorized("account is unavailable")
	}

	session, err := newSession(&user)
	if err != nil {
		log.Error("Failed to generate tokens", zap.Error(err))
		return apperr.Internal("token error")
	}

	return response.OK(c, http.StatusOK, session)
}

// GetProfile returns the caller's own user record
func GetProfile(c echo.Context) error {
	cl, err := claims(c)
	if err != nil {
		return err
	}

	var user model.User
	if result := database.GetDB().First(&user, cl.UserID); result.Error != nil {
		return apperr.NotFound("user not found")
	}
	return response.OK(c, http.StatusOK, user)
}

// UpdateProfile updates the caller's own profile. Only the allow-listed
// fields are touched.
func UpdateProfile(c echo.Context) error {
	log := logger.FromContext(c)
	cl, err := claims(c)
	if err != nil {
		return err
	}

	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Avatar    *string `json:"avatar"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request")
	}

	updates := map[string]interface{}{}
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
	if result := database.GetDB().Model(&model.User{}).Where("id = ?", cl.UserID).Updates(updates); result.Error != nil {
		log.Error("Failed to update profile", zap.Error(result.Error))
		return apperr.Internal("profile update failed")
	}

	var user model.User
	database.GetDB().First(&user, cl.UserID)
	return response.OK(c, http.StatusOK, user)
}

// ChangePassword verifies the current password before setting a new one
func ChangePassword(c echo.Context) error {
	log := logger.FromContext(c)
	cl, err := claims(c)
	if err != nil {
		return err
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request")
	}
	if len(req.NewPassword) < 8 {
		return apperr.Validation("invalid password", apperr.FieldError{
			Field: "new_password", Message: "password must be at least 8 characters",
		})
	}

	var user model.User
	if result := database.GetDB().First(&user, cl.UserID); result.Error != nil {
		return apperr.NotFound("user not found")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		prometheus.RecordAuthError("invalid_password")
		return apperr.Unauthorized("current password is incorrect")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return apperr.Internal("password change failed")
	}

	if result := database.GetDB().Model(&user).Update("password", string(hashed)); result.Error != nil {
		log.Error("Failed to update password", zap.Error(result.Error))
		return apperr.Internal("password change failed")
	}

	log.Info("Password changed", zap.Uint("user_id", user.ID))
	return response.Message(c, http.StatusOK, "password changed")
}
