package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims *Claims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	validator := NewTokenValidator(testSecret)

	signed := signToken(t, &Claims{
		UserID: "user-1",
		Email:  "user@example.com",
		Role:   "client",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	claims, err := validator.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "client", claims.Role)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	validator := NewTokenValidator(testSecret)

	signed := signToken(t, &Claims{UserID: "user-1"}, "other-secret")

	_, err := validator.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	validator := NewTokenValidator(testSecret)

	signed := signToken(t, &Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, testSecret)

	_, err := validator.ValidateToken(signed)
	assert.Error(t, err)
}

func TestValidateTokenMissingUserID(t *testing.T) {
	validator := NewTokenValidator(testSecret)

	signed := signToken(t, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	_, err := validator.ValidateToken(signed)
	assert.Error(t, err)
}
