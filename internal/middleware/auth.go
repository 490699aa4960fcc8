package middleware

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/teamloop/teamloop/internal/model"
	"github.com/teamloop/teamloop/pkg/apperr"
	"github.com/teamloop/teamloop/pkg/jwtutil"
	"github.com/teamloop/teamloop/pkg/logger"
	"github.com/teamloop/teamloop/prometheus"
)

const claimsKey = "user"

// AuthMiddleware validates the JWT token from the Authorization header
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Error("Missing Authorization header")
			prometheus.RecordAuthError("missing_token")
			return apperr.Unauthorized("missing authorization token")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Error("Invalid Authorization header format")
			prometheus.RecordAuthError("invalid_auth_format")
			return apperr.Unauthorized("invalid authorization format, expected Bearer token")
		}

		claims, err := jwtutil.ValidateToken(parts[1])
		if err != nil {
			log.Error("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return apperr.Unauthorized("invalid or expired token")
		}

		// Refresh tokens are only good for the refresh endpoint
		if claims.TokenType != jwtutil.TokenTypeAccess {
			log.Error("Non-access token presented on API endpoint")
			prometheus.RecordAuthError("wrong_token_type")
			return apperr.Unauthorized("invalid or expired token")
		}

		c.Set(claimsKey, claims)
		return next(c)
	}
}

// ClaimsFrom returns the authenticated caller's claims, set by AuthMiddleware
func ClaimsFrom(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwtutil.UserClaims)
	return claims, ok
}

// RequireTenant enforces tenant isolation on /tenants/:tenantId routes: the
// path tenant must match the caller's tenant unless the caller is a
// super-admin operating cross-tenant explicitly.
func RequireTenant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		claims, ok := ClaimsFrom(c)
		if !ok {
			return apperr.Unauthorized("authentication required")
		}

		tenantID, err := strconv.ParseUint(c.Param("tenantId"), 10, 32)
		if err != nil {
			return apperr.Validation("invalid tenant ID")
		}

		if claims.Role != model.RoleSuperAdmin && claims.TenantID != uint(tenantID) {
			log.Warn("Cross-tenant access attempt",
				zap.Uint("caller_tenant_id", claims.TenantID),
				zap.Uint64("path_tenant_id", tenantID))
			return apperr.Forbidden("access denied")
		}

		c.Set("path_tenant_id", uint(tenantID))
		return next(c)
	}
}

// PathTenantID returns the tenant ID resolved by RequireTenant
func PathTenantID(c echo.Context) uint {
	id, _ := c.Get("path_tenant_id").(uint)
	return id
}

// RequireSuperAdmin guards the cross-tenant admin surface
func RequireSuperAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, ok := ClaimsFrom(c)
		if !ok {
			return apperr.Unauthorized("authentication required")
		}
		if claims.Role != model.RoleSuperAdmin {
			logger.FromContext(c).Warn("Admin endpoint access denied",
				zap.Uint("user_id", claims.UserID),
				zap.String("role", claims.Role))
			return apperr.Forbidden("super-admin access required")
		}
		return next(c)
	}
}
