package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)
	userID := uuid.New()

	token, err := m.Issue(userID, entity.RoleProfessional)
	require.NoError(t, err)

	gotID, role, err := m.ParseAccess(token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, entity.RoleProfessional, role)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	token, err := NewTokenManager("one", time.Minute).Issue(uuid.New(), entity.RoleCandidate)
	require.NoError(t, err)

	_, _, err = NewTokenManager("two", time.Minute).ParseAccess(token)
	assert.Error(t, err)
}

func TestTokenManager_Expired(t *testing.T) {
	claims := jwt.MapClaims{
		"sub":  uuid.NewString(),
		"role": "candidate",
		"exp":  time.Now().Add(-time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, _, err = NewTokenManager("secret", time.Minute).ParseAccess(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_UnknownRole(t *testing.T) {
	m := NewTokenManager("secret", time.Minute)
	token, err := m.Issue(uuid.New(), entity.Role("system"))
	require.NoError(t, err)

	_, _, err = m.ParseAccess(token)
	assert.ErrorIs(t, err, ErrUnknownRole)
}
