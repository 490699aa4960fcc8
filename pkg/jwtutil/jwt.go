package jwtutil

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/teamloop/teamloop/pkg/config"
)

// Token types carried in the claims so a refresh token can never be used
// as an access token or the other way around.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	signingKey    = []byte("secret-key")
	accessExpiry  = 15 * time.Minute
	refreshExpiry = 30 * 24 * time.Hour
)

// Initialize configures the package from application configuration
func Initialize(cfg *config.JWTConfig) {
	signingKey = []byte(cfg.SigningKey)
	if cfg.AccessExpiryMinutes > 0 {
		accessExpiry = time.Duration(cfg.AccessExpiryMinutes) * time.Minute
	}
	if cfg.RefreshExpiryDays > 0 {
		refreshExpiry = time.Duration(cfg.RefreshExpiryDays) * 24 * time.Hour
	}
}

// UserClaims represents the JWT claims for user authentication
type UserClaims struct {
	UserID    uint   `json:"user_id"`
	Email     string `json:"email"`
	TenantID  uint   `json:"tenant_id"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// GenerateAccessToken creates a short-lived token asserting user, tenant and role
func GenerateAccessToken(userID uint, email string, tenantID uint, role string) (string, error) {
	return generate(userID, email, tenantID, role, TokenTypeAccess, accessExpiry)
}

// GenerateRefreshToken creates the long-lived companion token
func GenerateRefreshToken(userID uint, email string, tenantID uint, role string) (string, error) {
	return generate(userID, email, tenantID, role, TokenTypeRefresh, refreshExpiry)
}

func generate(userID uint, email string, tenantID uint, role, tokenType string, expiry time.Duration) (string, error) {
	claims := UserClaims{
		UserID:    userID,
		Email:     email,
		TenantID:  tenantID,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

// ValidateToken validates and parses the JWT token
func ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return signingKey, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// ValidateRefreshToken validates a token and requires the refresh token type
func ValidateRefreshToken(tokenString string) (*UserClaims, error) {
	claims, err := ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
