package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

func newTestAuthService() *AuthService {
	return NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "gurukul"})
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := newTestAuthService()
	user := &models.User{ID: "stu-1", Email: "s@example.com", FullName: "Asha", Role: models.RoleStudent}

	token, expiresAt, err := svc.IssueToken(user, time.Hour)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "Asha", claims.Info().FullName)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other", Issuer: "gurukul"})
	token, _, err := other.IssueToken(&models.User{ID: "u", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = newTestAuthService().ValidateToken(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestAuthService()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.IssueToken(&models.User{ID: "u", Role: models.RoleStudent}, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsUnknownRole(t *testing.T) {
	svc := newTestAuthService()
	claims := &models.JWTClaims{
		UserID: "u",
		Role:   models.UserRole("TEACHER"),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gurukul",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsOtherIssuer(t *testing.T) {
	issuer := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"})
	token, _, err := issuer.IssueToken(&models.User{ID: "u", Role: models.RoleStudent}, time.Hour)
	require.NoError(t, err)

	_, err = newTestAuthService().ValidateToken(token)
	assert.Error(t, err)
}
