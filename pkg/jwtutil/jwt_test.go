package jwtutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamloop/teamloop/pkg/config"
)

func init() {
	Initialize(&config.JWTConfig{
		SigningKey:          "test-signing-key",
		AccessExpiryMinutes: 15,
		RefreshExpiryDays:   30,
	})
}

func TestAccessTokenRoundtrip(t *testing.T) {
	token, err := GenerateAccessToken(42, "alice@example.com", 7, "ADMIN")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, uint(7), claims.TenantID)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestRefreshTokenType(t *testing.T) {
	refresh, err := GenerateRefreshToken(42, "alice@example.com", 7, "ADMIN")
	require.NoError(t, err)

	claims, err := ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
}

func TestAccessTokenRejectedAsRefresh(t *testing.T) {
	access, err := GenerateAccessToken(42, "alice@example.com", 7, "ADMIN")
	require.NoError(t, err)

	_, err = ValidateRefreshToken(access)
	assert.Error(t, err)
}

func TestTamperedTokenRejected(t *testing.T) {
	token, err := GenerateAccessToken(42, "alice@example.com", 7, "ADMIN")
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "xxxx"
	_, err = ValidateToken(tampered)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	_, err := ValidateToken("not-a-token")
	assert.Error(t, err)
}
